package main

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/go-go-golems/forkchat/pkg/conversation"
	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"
)

// chatSchema describes the stored chat document.
func chatSchema() *jsonschema.Schema {
	timestampType := reflect.TypeOf(conversation.Timestamp{})
	reflector := jsonschema.Reflector{
		DoNotReference: true,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t == timestampType {
				return &jsonschema.Schema{Type: "string", Format: "date-time"}
			}
			return nil
		},
	}
	s := reflector.Reflect(&conversation.Chat{})
	s.Title = "forkchat chat document"
	return s
}

func newSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema of a chat document",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := json.MarshalIndent(chatSchema(), "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return err
		},
	}
}
