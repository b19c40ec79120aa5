package cli

import (
	"errors"
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"

	"github.com/AntonStoeckl/temporal-history-go/datalayer"
)

var ErrWritingOutputFailed = errors.New("writing output failed")

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// write renders v as yaml or json.
func write(w io.Writer, format string, v any) error {
	switch format {
	case FormatJSON:
		out, err := jsonAPI.MarshalIndent(v, "", "  ")
		if err != nil {
			return errors.Join(ErrWritingOutputFailed, err)
		}

		if _, err := fmt.Fprintf(w, "%s\n", out); err != nil {
			return errors.Join(ErrWritingOutputFailed, err)
		}

		return nil

	default:
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)

		if err := encoder.Encode(v); err != nil {
			return errors.Join(ErrWritingOutputFailed, err)
		}

		if err := encoder.Close(); err != nil {
			return errors.Join(ErrWritingOutputFailed, err)
		}

		return nil
	}
}

// writeDDL prints the statements that create the tables and indexes of the entities, one per line.
func writeDDL(w io.Writer, db *datalayer.DB, entities []*datalayer.Entity) error {
	for _, e := range entities {
		for _, stmt := range db.DDL(e) {
			if _, err := fmt.Fprintf(w, "%s;\n", stmt); err != nil {
				return errors.Join(ErrWritingOutputFailed, err)
			}
		}
	}

	return nil
}
