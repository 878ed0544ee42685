// Package openapi parses the local API description consumed by the sync engine.
//
// The package accepts OpenAPI 3.0.x and 3.1.x documents in JSON or YAML and
// automatically converts Swagger 2.0 input to OpenAPI 3.0. Parsing keeps the
// raw file bytes alongside the resolved model: the catalog stores the document
// verbatim, while the engine reads the resolved model for the title, declared
// servers, and tag groupings that drive collection and environment setup.
//
// # Example Usage
//
//	parser := openapi.NewParser()
//	doc, err := parser.ParseFile(ctx, "openapi.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("API: %s v%s\n", doc.Title, doc.Version)
//	for _, srv := range doc.Servers() {
//	    fmt.Println(srv.URL, srv.Description)
//	}
package openapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/getkin/kin-openapi/openapi2"
	"github.com/getkin/kin-openapi/openapi2conv"
	"github.com/getkin/kin-openapi/openapi3"
	"gopkg.in/yaml.v3"
)

// ErrInvalidDocument indicates the input file is not a usable API description.
// Parse failures wrap this sentinel together with the underlying detail.
var ErrInvalidDocument = errors.New("invalid API description")

// Parser handles parsing of OpenAPI 3.x and Swagger 2.0 specifications.
type Parser struct {
	// DisableValidation skips OpenAPI spec validation
	DisableValidation bool
	// AllowRemoteRefs enables loading remote $ref references
	AllowRemoteRefs bool
}

// NewParser creates a new Parser instance with default settings.
func NewParser() *Parser {
	return &Parser{}
}

// SpecVersion indicates the OpenAPI specification version.
type SpecVersion string

const (
	// SpecVersionSwagger2 represents Swagger 2.0 / OpenAPI 2.0
	SpecVersionSwagger2 SpecVersion = "2.0"
	// SpecVersionOpenAPI3 represents OpenAPI 3.0.x
	SpecVersionOpenAPI3 SpecVersion = "3.0"
	// SpecVersionOpenAPI31 represents OpenAPI 3.1.x
	SpecVersionOpenAPI31 SpecVersion = "3.1"
)

// Server is one declared server entry from the document.
type Server struct {
	URL         string
	Description string
}

// Document is a parsed API description with the raw bytes preserved.
type Document struct {
	// Title is the info.title field; it is the remote identity key.
	Title string
	// Version is the info.version field.
	Version string
	// Raw is the unmodified file content, uploaded to the catalog verbatim.
	Raw []byte
	// Spec is the resolved OpenAPI 3.x model.
	Spec *openapi3.T
	// OriginalVersion indicates the original spec format.
	OriginalVersion SpecVersion
}

// Parse parses an API description from a byte slice.
// Automatically detects Swagger 2.0 and converts to OpenAPI 3.0.
func (p *Parser) Parse(ctx context.Context, data []byte) (*Document, error) {
	version, err := p.detectVersion(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	var spec *openapi3.T

	switch version {
	case SpecVersionSwagger2:
		spec, err = p.parseSwagger2(ctx, data)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
		}
	case SpecVersionOpenAPI3, SpecVersionOpenAPI31:
		spec, err = p.parseOpenAPI3(ctx, data)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported spec version %q", ErrInvalidDocument, version)
	}

	if spec.Info == nil || spec.Info.Title == "" {
		return nil, fmt.Errorf("%w: missing info.title", ErrInvalidDocument)
	}

	return &Document{
		Title:           spec.Info.Title,
		Version:         spec.Info.Version,
		Raw:             data,
		Spec:            spec,
		OriginalVersion: version,
	}, nil
}

// ParseFile parses an API description from a file.
func (p *Parser) ParseFile(ctx context.Context, path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return p.Parse(ctx, data)
}

// detectVersion detects the OpenAPI specification version.
// YAML is a superset of JSON, so a single YAML probe covers both formats.
func (p *Parser) detectVersion(data []byte) (SpecVersion, error) {
	var versionCheck struct {
		Swagger string `yaml:"swagger" json:"swagger"`
		OpenAPI string `yaml:"openapi" json:"openapi"`
	}

	if err := yaml.Unmarshal(data, &versionCheck); err != nil {
		return "", fmt.Errorf("failed to parse spec: %w", err)
	}

	if versionCheck.Swagger != "" {
		if strings.HasPrefix(versionCheck.Swagger, "2.") {
			return SpecVersionSwagger2, nil
		}
		return "", fmt.Errorf("unsupported swagger version: %s", versionCheck.Swagger)
	}

	if versionCheck.OpenAPI != "" {
		if strings.HasPrefix(versionCheck.OpenAPI, "3.0.") {
			return SpecVersionOpenAPI3, nil
		}
		if strings.HasPrefix(versionCheck.OpenAPI, "3.1.") {
			return SpecVersionOpenAPI31, nil
		}
		return "", fmt.Errorf("unsupported openapi version: %s", versionCheck.OpenAPI)
	}

	return "", fmt.Errorf("could not determine spec version (missing 'swagger' or 'openapi' field)")
}

// parseSwagger2 parses a Swagger 2.0 spec and converts it to OpenAPI 3.0.
func (p *Parser) parseSwagger2(ctx context.Context, data []byte) (*openapi3.T, error) {
	// openapi2.T only unmarshals JSON; normalize YAML input first.
	jsonData := data
	if !json.Valid(data) {
		var raw any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse Swagger 2.0 YAML: %w", err)
		}
		converted, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to normalize Swagger 2.0 YAML: %w", err)
		}
		jsonData = converted
	}

	var spec2 openapi2.T
	if err := json.Unmarshal(jsonData, &spec2); err != nil {
		return nil, fmt.Errorf("failed to unmarshal Swagger 2.0: %w", err)
	}

	spec3, err := openapi2conv.ToV3(&spec2)
	if err != nil {
		return nil, fmt.Errorf("failed to convert Swagger 2.0 to OpenAPI 3.0: %w", err)
	}

	if !p.DisableValidation {
		if err := spec3.Validate(ctx); err != nil {
			return nil, fmt.Errorf("converted spec validation failed: %w", err)
		}
	}

	return spec3, nil
}

// parseOpenAPI3 parses an OpenAPI 3.x specification.
func (p *Parser) parseOpenAPI3(ctx context.Context, data []byte) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = p.AllowRemoteRefs

	spec, err := loader.LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load OpenAPI 3.x: %w", err)
	}

	if !p.DisableValidation {
		if err := spec.Validate(ctx); err != nil {
			return nil, fmt.Errorf("spec validation failed: %w", err)
		}
	}

	return spec, nil
}

// Servers returns the declared server list in declaration order.
func (d *Document) Servers() []Server {
	servers := make([]Server, 0, len(d.Spec.Servers))
	for _, s := range d.Spec.Servers {
		if s == nil {
			continue
		}
		servers = append(servers, Server{URL: s.URL, Description: s.Description})
	}
	return servers
}

// Tags returns the tag names used to group operations, declared tags first,
// then any tags referenced only by operations.
func (d *Document) Tags() []string {
	seen := make(map[string]bool)
	var tags []string

	for _, t := range d.Spec.Tags {
		if t != nil && t.Name != "" && !seen[t.Name] {
			seen[t.Name] = true
			tags = append(tags, t.Name)
		}
	}

	if d.Spec.Paths == nil {
		return tags
	}
	for _, pathItem := range d.Spec.Paths.Map() {
		for _, operation := range pathItem.Operations() {
			if operation == nil {
				continue
			}
			for _, name := range operation.Tags {
				if name != "" && !seen[name] {
					seen[name] = true
					tags = append(tags, name)
				}
			}
		}
	}
	return tags
}

// Slug returns a filesystem-safe name derived from the title, used for
// export file naming.
func (d *Document) Slug() string {
	s := strings.ToLower(d.Title)
	s = strings.ReplaceAll(s, " ", "-")
	s = strings.ReplaceAll(s, ".", "-")

	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
