package anthropometry

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// MaxCatalogFileSize bounds an external catalog file.
const MaxCatalogFileSize = 1 << 20

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// Field keys consumed by the index calculator.
const (
	KeyBodyMass       = "bodyMass"
	KeyHeight         = "height"
	KeySittingHeight  = "sittingHeight"
	KeyTricepsFold    = "tricepsFold"
	KeySubscapular    = "subscapularFold"
	KeyBicepsFold     = "bicepsFold"
	KeyIliacCrestFold = "iliacCrestFold"
	KeySupraspinal    = "supraspinalFold"
	KeyAbdominalFold  = "abdominalFold"
	KeyThighFold      = "thighFold"
	KeyCalfFold       = "calfFold"
	KeyRelaxedArm     = "relaxedArmCircumference"
	KeyChest          = "chestCircumference"
	KeyWaist          = "waistCircumference"
	KeyHip            = "hipCircumference"
	KeyMidThigh       = "midThighCircumference"
	KeyCalf           = "calfCircumference"
	KeyAcromialRadial = "acromialRadialeLength"
	KeyRadialStylion  = "radialStylionLength"
	KeyStylionDactyl  = "stylionDactylionLength"
	KeyIliospinale    = "iliospinaleHeight"
	KeyTrochTibiale   = "trochanterionTibialeLength"
	KeyTibialeHeight  = "tibialeHeight"
	KeyBiacromial     = "biacromialDiameter"
	KeyAbdomenAP      = "abdomenAnteroPosteriorDiameter"
	KeyBiiliocristal  = "biiliocristalDiameter"
	KeyBiestyloid     = "biestyloidDiameter"
	KeyFemur          = "femurDiameter"
)

// requiredKeys must exist in any catalog the calculator runs against.
var requiredKeys = []string{
	KeyBodyMass, KeyHeight, KeySittingHeight,
	KeyTricepsFold, KeySubscapular, KeyBicepsFold, KeyIliacCrestFold,
	KeySupraspinal, KeyAbdominalFold, KeyThighFold, KeyCalfFold,
	KeyRelaxedArm, KeyChest, KeyWaist, KeyHip, KeyMidThigh, KeyCalf,
	KeyAcromialRadial, KeyRadialStylion, KeyStylionDactyl, KeyIliospinale,
	KeyTrochTibiale, KeyTibialeHeight,
	KeyBiacromial, KeyAbdomenAP, KeyBiiliocristal, KeyBiestyloid, KeyFemur,
}

// Group is a titled run of fields as presented on the capture form.
type Group struct {
	Title    string   `json:"title" yaml:"title"`
	Category Category `json:"category" yaml:"category"`
	Fields   []Field  `json:"fields" yaml:"fields"`
}

type catalogYAML struct {
	Groups []Group `yaml:"groups"`
}

// Catalog is the immutable table of measurement fields. It is safe for
// concurrent use.
type Catalog struct {
	groups []Group
	fields []Field
	index  map[string]int
}

// DefaultCatalog parses the embedded catalog. It panics if the embedded
// document is invalid, which is a build defect.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalogYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded catalog: %v", err))
	}
	return c
}

// LoadCatalog reads a catalog from path, or returns the embedded catalog
// when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return ParseCatalog(defaultCatalogYAML)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat catalog: %w", err)
	}
	if info.Size() > MaxCatalogFileSize {
		return nil, fmt.Errorf("catalog %s exceeds %d bytes", path, MaxCatalogFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates a YAML catalog document. A field
// inherits its group's category unless it declares its own.
func ParseCatalog(data []byte) (*Catalog, error) {
	var doc catalogYAML
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(doc.Groups) == 0 {
		return nil, fmt.Errorf("catalog has no groups")
	}

	c := &Catalog{index: make(map[string]int)}
	for gi, g := range doc.Groups {
		if g.Title == "" {
			return nil, fmt.Errorf("group %d: title is required", gi)
		}
		out := Group{Title: g.Title, Category: g.Category}
		for _, f := range g.Fields {
			if f.Category == "" {
				f.Category = g.Category
			}
			if f.Key == "" {
				return nil, fmt.Errorf("group %q: field key is required", g.Title)
			}
			if !f.Category.Valid() {
				return nil, fmt.Errorf("field %s: unknown category %q", f.Key, f.Category)
			}
			if f.Unit == "" {
				return nil, fmt.Errorf("field %s: unit is required", f.Key)
			}
			if _, dup := c.index[f.Key]; dup {
				return nil, fmt.Errorf("field %s: duplicate key", f.Key)
			}
			c.index[f.Key] = len(c.fields)
			c.fields = append(c.fields, f)
			out.Fields = append(out.Fields, f)
		}
		c.groups = append(c.groups, out)
	}

	for _, k := range requiredKeys {
		if _, ok := c.index[k]; !ok {
			return nil, fmt.Errorf("catalog is missing required field %s", k)
		}
	}
	return c, nil
}

// Fields returns every field in display order.
func (c *Catalog) Fields() []Field {
	out := make([]Field, len(c.fields))
	copy(out, c.fields)
	return out
}

// Groups returns the catalog groups in display order.
func (c *Catalog) Groups() []Group {
	out := make([]Group, len(c.groups))
	for i, g := range c.groups {
		out[i] = Group{Title: g.Title, Category: g.Category, Fields: append([]Field(nil), g.Fields...)}
	}
	return out
}

// GroupsOf returns the groups of one category. An empty category returns
// every group.
func (c *Catalog) GroupsOf(cat Category) []Group {
	all := c.Groups()
	if cat == "" {
		return all
	}
	var out []Group
	for _, g := range all {
		if g.Category == cat {
			out = append(out, g)
		}
	}
	return out
}

// Field looks up a field by key.
func (c *Catalog) Field(key string) (Field, bool) {
	i, ok := c.index[key]
	if !ok {
		return Field{}, false
	}
	return c.fields[i], true
}

// ByCategory returns the fields of one category in display order.
func (c *Catalog) ByCategory(cat Category) []Field {
	var out []Field
	for _, f := range c.fields {
		if f.Category == cat {
			out = append(out, f)
		}
	}
	return out
}

// Keys returns every field key in display order.
func (c *Catalog) Keys() []string {
	out := make([]string, len(c.fields))
	for i, f := range c.fields {
		out[i] = f.Key
	}
	return out
}

// Len is the number of fields.
func (c *Catalog) Len() int { return len(c.fields) }
