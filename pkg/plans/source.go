package plans

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Source loads the plan catalog. Order is preserved by the registry and drives List.
type Source interface {
	Load(ctx context.Context) ([]Plan, error)
}

type inMemSource struct {
	plans []Plan
}

// NewInMemSource returns a Source serving a copy of the given plans.
func NewInMemSource(plans ...Plan) Source {
	return &inMemSource{plans: slices.Clone(plans)}
}

func (s *inMemSource) Load(context.Context) ([]Plan, error) {
	return slices.Clone(s.plans), nil
}

type yamlCatalog struct {
	Plans []Plan `yaml:"plans"`
}

type yamlFileSource struct {
	path string
}

// NewYAMLSource reads the catalog from a YAML file on every Load:
//
//	plans:
//	  - id: free
//	    name: Free
//	    monthly_limit: 3
//	    public: true
//	  - id: growth
//	    name: Growth
//	    monthly_limit: 100
//	    paid: true
//	    price_ref: STRIPE_PRICE_GROWTH
//	    public: true
func NewYAMLSource(path string) Source {
	return &yamlFileSource{path: path}
}

func (s *yamlFileSource) Load(ctx context.Context) ([]Plan, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open plan catalog %s: %w", s.path, err)
	}
	defer f.Close()

	return decodeYAML(f)
}

type yamlReaderSource struct {
	r io.Reader
}

// NewYAMLReaderSource decodes the catalog from r. The reader is consumed on the first Load.
func NewYAMLReaderSource(r io.Reader) Source {
	return &yamlReaderSource{r: r}
}

func (s *yamlReaderSource) Load(context.Context) ([]Plan, error) {
	return decodeYAML(s.r)
}

func decodeYAML(r io.Reader) ([]Plan, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var catalog yamlCatalog
	if err := dec.Decode(&catalog); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode plan catalog: %w", err)
	}
	return catalog.Plans, nil
}
