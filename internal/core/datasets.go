package core

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/zetlen/csvstream/internal/validate"
)

// datasetsFile is the on-disk shape of a dataset definitions file.
type datasetsFile struct {
	Datasets []datasetDef `json:"datasets"`
}

type datasetDef struct {
	Key      string     `json:"key"`
	Label    string     `json:"label"`
	Columns  []string   `json:"columns"`
	NoHeader bool       `json:"noHeader"`
	Fields   []fieldDef `json:"fields"`
}

type fieldDef struct {
	Name       string   `json:"name"`
	Type       string   `json:"type"`
	Required   bool     `json:"required"`
	AllowEmpty bool     `json:"allowEmpty"`
	Enum       []string `json:"enum"`
}

// LoadDatasets reads a JSON definitions file and returns the datasets it
// declares. Field types are resolved through the validate package; an unknown
// type token fails the whole load rather than degrading to text.
func LoadDatasets(path string) ([]Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset definitions: %w", err)
	}

	var file datasetsFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse dataset definitions: %w", err)
	}

	datasets := make([]Dataset, 0, len(file.Datasets))
	for _, def := range file.Datasets {
		ds := Dataset{
			Key:      def.Key,
			Label:    def.Label,
			Columns:  def.Columns,
			NoHeader: def.NoHeader,
		}
		for _, f := range def.Fields {
			ft, err := validate.ParseFieldType(f.Type)
			if err != nil {
				return nil, fmt.Errorf("dataset %s, field %s: %w", def.Key, f.Name, err)
			}
			ds.Specs = append(ds.Specs, validate.FieldSpec{
				Name:       f.Name,
				Type:       ft,
				Required:   f.Required,
				AllowEmpty: f.AllowEmpty,
				EnumValues: f.Enum,
			})
		}
		datasets = append(datasets, ds)
	}

	return datasets, nil
}

// RegisterAll registers every dataset, stopping at the first failure.
func RegisterAll(datasets []Dataset) error {
	for _, ds := range datasets {
		if err := Register(ds); err != nil {
			return err
		}
	}
	return nil
}
