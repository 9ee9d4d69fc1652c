package plugins

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gopkg.in/yaml.v3"

	"github.com/linht/eos/radio"
)

// OrderedMap represents a map that preserves insertion order
// It implements json.Marshaler to output keys in order
type OrderedMap struct {
	Keys   []string
	Values map[string]interface{}
}

// MarshalJSON implements json.Marshaler for OrderedMap
func (om *OrderedMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("{")
	for i, key := range om.Keys {
		if i > 0 {
			buf.WriteString(",")
		}
		keyBytes, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(keyBytes)
		buf.WriteString(":")
		valBytes, err := json.Marshal(om.Values[key])
		if err != nil {
			return nil, err
		}
		buf.Write(valBytes)
	}
	buf.WriteString("}")
	return buf.Bytes(), nil
}

// yamlNodeToOrderedJSON converts a yaml.Node to an ordered JSON-compatible
// structure. Register values stay in the hex spelling used in the file.
func yamlNodeToOrderedJSON(node *yaml.Node) interface{} {
	switch node.Kind {
	case yaml.DocumentNode:
		if len(node.Content) > 0 {
			return yamlNodeToOrderedJSON(node.Content[0])
		}
		return nil

	case yaml.MappingNode:
		om := &OrderedMap{
			Keys:   make([]string, 0, len(node.Content)/2),
			Values: make(map[string]interface{}),
		}
		for i := 0; i+1 < len(node.Content); i += 2 {
			key := node.Content[i].Value
			om.Keys = append(om.Keys, key)
			om.Values[key] = yamlNodeToOrderedJSON(node.Content[i+1])
		}
		return om

	case yaml.SequenceNode:
		result := make([]interface{}, len(node.Content))
		for i, item := range node.Content {
			result[i] = yamlNodeToOrderedJSON(item)
		}
		return result

	case yaml.ScalarNode:
		switch node.Tag {
		case "!!null":
			return nil
		case "!!bool":
			return node.Value == "true"
		case "!!float":
			var v float64
			if err := node.Decode(&v); err == nil {
				return v
			}
			return node.Value
		default:
			return node.Value
		}

	case yaml.AliasNode:
		if node.Alias != nil {
			return yamlNodeToOrderedJSON(node.Alias)
		}
		return nil

	default:
		return node.Value
	}
}

// Profile document layout:
//
//	description: free text
//	registers:
//	  SYNC1: 0xD3
//	  ...
const (
	profileDescriptionKey = "description"
	profileRegistersKey   = "registers"
)

func scalarNode(value, tag string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Value: value, Tag: tag}
}

func registerValueNode(v byte) *yaml.Node {
	return scalarNode(fmt.Sprintf("0x%02X", v), "!!int")
}

// mappingValue returns the value node for key in a mapping node
func mappingValue(node *yaml.Node, key string) *yaml.Node {
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}

func documentRoot(doc *yaml.Node) *yaml.Node {
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		return doc.Content[0]
	}
	return doc
}

// newProfileNode builds a profile document with registers in address order
func newProfileNode(regs radio.Registers, description string) *yaml.Node {
	regNode := &yaml.Node{Kind: yaml.MappingNode}
	for _, reg := range radio.AllRegisters() {
		regNode.Content = append(regNode.Content, scalarNode(reg.String(), "!!str"), registerValueNode(regs.Get(reg)))
	}

	root := &yaml.Node{Kind: yaml.MappingNode}
	root.Content = append(root.Content,
		scalarNode(profileDescriptionKey, "!!str"), scalarNode(description, "!!str"),
		scalarNode(profileRegistersKey, "!!str"), regNode,
	)
	return &yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{root}}
}

// updateProfileNode rewrites register values inside an existing document,
// keeping its key order and comments. Registers the file lacks are appended.
func updateProfileNode(doc *yaml.Node, regs radio.Registers) error {
	root := documentRoot(doc)
	if root.Kind != yaml.MappingNode {
		return fmt.Errorf("profile root is not a mapping")
	}

	regNode := mappingValue(root, profileRegistersKey)
	if regNode == nil {
		regNode = &yaml.Node{Kind: yaml.MappingNode}
		root.Content = append(root.Content, scalarNode(profileRegistersKey, "!!str"), regNode)
	}
	if regNode.Kind != yaml.MappingNode {
		return fmt.Errorf("%q is not a mapping", profileRegistersKey)
	}

	seen := make(map[radio.Register]bool)
	for i := 0; i+1 < len(regNode.Content); i += 2 {
		reg, ok := radio.LookupRegister(regNode.Content[i].Value)
		if !ok {
			continue
		}
		v := regs.Get(reg)
		regNode.Content[i+1].Value = fmt.Sprintf("0x%02X", v)
		regNode.Content[i+1].Tag = "!!int"
		seen[reg] = true
	}
	for _, reg := range radio.AllRegisters() {
		if !seen[reg] {
			regNode.Content = append(regNode.Content, scalarNode(reg.String(), "!!str"), registerValueNode(regs.Get(reg)))
		}
	}
	return nil
}

// setProfileDescription replaces the description, appending it when absent
func setProfileDescription(root *yaml.Node, description string) {
	if node := mappingValue(root, profileDescriptionKey); node != nil {
		node.Value = description
		node.Tag = "!!str"
		return
	}
	root.Content = append(root.Content,
		scalarNode(profileDescriptionKey, "!!str"), scalarNode(description, "!!str"))
}

// parseProfile applies the registers listed in a profile document on top of
// base. Unknown register names and values outside 0-255 are rejected.
func parseProfile(data []byte, base radio.Registers) (radio.Registers, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return base, fmt.Errorf("failed to parse profile: %w", err)
	}

	regNode := mappingValue(documentRoot(&doc), profileRegistersKey)
	if regNode == nil {
		return base, fmt.Errorf("profile has no %q section", profileRegistersKey)
	}

	regs := base
	for i := 0; i+1 < len(regNode.Content); i += 2 {
		name := regNode.Content[i].Value
		reg, ok := radio.LookupRegister(name)
		if !ok {
			return base, fmt.Errorf("unknown register %q", name)
		}
		var v int
		if err := regNode.Content[i+1].Decode(&v); err != nil {
			return base, fmt.Errorf("register %s: %w", name, err)
		}
		if v < 0 || v > 0xFF {
			return base, fmt.Errorf("register %s: value %d is not a byte", name, v)
		}
		regs.Set(reg, byte(v))
	}
	return regs, nil
}

// RegisterStore is the register image the profiles plugin reads and replaces
type RegisterStore interface {
	Snapshot() radio.Registers
	LoadRegisters(regs radio.Registers) ([]radio.Register, error)
}

var profileNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ProfilesPlugin saves and restores named register profiles as YAML files
type ProfilesPlugin struct {
	dir   string
	store RegisterStore
}

// ProfilesOptions is the factory config for the profiles plugin
type ProfilesOptions struct {
	Dir   string
	Store RegisterStore
}

// NewProfilesPlugin creates a new profiles plugin instance
func NewProfilesPlugin(dir string, store RegisterStore) (*ProfilesPlugin, error) {
	if dir == "" {
		return nil, fmt.Errorf("profiles_dir is required in profiles plugin configuration")
	}
	if store == nil {
		return nil, fmt.Errorf("profiles plugin requires the radio plugin")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create profiles directory: %w", err)
	}

	return &ProfilesPlugin{
		dir:   dir,
		store: store,
	}, nil
}

// Name returns the plugin identifier
func (p *ProfilesPlugin) Name() string {
	return "profiles"
}

// RegisterRoutes adds the plugin's HTTP routes
func (p *ProfilesPlugin) RegisterRoutes(app *fiber.App) {
	api := app.Group("/api/profiles")

	api.Get("/", p.listProfiles)
	api.Get("/:name", p.loadProfile)
	api.Post("/:name", p.saveProfile)
	api.Post("/:name/apply", p.applyProfile)
	api.Delete("/:name", p.deleteProfile)
}

// Shutdown performs cleanup
func (p *ProfilesPlugin) Shutdown() error {
	return nil
}

func (p *ProfilesPlugin) path(c *fiber.Ctx) (string, bool) {
	name := c.Params("name")
	if !profileNamePattern.MatchString(name) {
		return "", false
	}
	return filepath.Join(p.dir, name+".yaml"), true
}

// listProfiles handles GET /api/profiles
func (p *ProfilesPlugin) listProfiles(c *fiber.Ctx) error {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return SendError(c, 500, fmt.Errorf("failed to read profiles directory: %w", err))
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(names)

	return SendSuccess(c, names, "")
}

// loadProfile handles GET /api/profiles/:name
func (p *ProfilesPlugin) loadProfile(c *fiber.Ctx) error {
	path, ok := p.path(c)
	if !ok {
		return SendErrorMessage(c, 400, "Invalid profile name")
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return SendErrorMessage(c, 404, "Profile not found")
	}
	if err != nil {
		return SendError(c, 500, fmt.Errorf("failed to read profile: %w", err))
	}

	var rootNode yaml.Node
	if err := yaml.Unmarshal(data, &rootNode); err != nil {
		return SendError(c, 500, fmt.Errorf("failed to parse profile: %w", err))
	}

	return SendSuccess(c, yamlNodeToOrderedJSON(&rootNode), "Profile loaded successfully")
}

// saveProfile handles POST /api/profiles/:name, storing the current registers
func (p *ProfilesPlugin) saveProfile(c *fiber.Ctx) error {
	path, ok := p.path(c)
	if !ok {
		return SendErrorMessage(c, 400, "Invalid profile name")
	}

	var req struct {
		Description *string `json:"description"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return SendErrorMessage(c, 400, "Invalid request body")
		}
	}

	regs := p.store.Snapshot()

	var doc *yaml.Node
	original, err := os.ReadFile(path)
	switch {
	case err == nil:
		doc = &yaml.Node{}
		if err := yaml.Unmarshal(original, doc); err != nil {
			return SendError(c, 500, fmt.Errorf("failed to parse existing profile: %w", err))
		}
		if err := updateProfileNode(doc, regs); err != nil {
			return SendError(c, 500, err)
		}
		if req.Description != nil {
			setProfileDescription(documentRoot(doc), *req.Description)
		}
	case errors.Is(err, os.ErrNotExist):
		description := ""
		if req.Description != nil {
			description = *req.Description
		}
		doc = newProfileNode(regs, description)
	default:
		return SendError(c, 500, fmt.Errorf("failed to read profile: %w", err))
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return SendError(c, 500, fmt.Errorf("failed to serialize profile: %w", err))
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return SendError(c, 500, fmt.Errorf("failed to write profile: %w", err))
	}

	return SendSuccess(c, nil, "Profile saved successfully")
}

// applyProfile handles POST /api/profiles/:name/apply
func (p *ProfilesPlugin) applyProfile(c *fiber.Ctx) error {
	path, ok := p.path(c)
	if !ok {
		return SendErrorMessage(c, 400, "Invalid profile name")
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return SendErrorMessage(c, 404, "Profile not found")
	}
	if err != nil {
		return SendError(c, 500, fmt.Errorf("failed to read profile: %w", err))
	}

	regs, err := parseProfile(data, p.store.Snapshot())
	if err != nil {
		return SendError(c, 400, err)
	}

	changed, err := p.store.LoadRegisters(regs)
	if err != nil {
		return SendRadioError(c, err)
	}

	names := make([]string, len(changed))
	for i, reg := range changed {
		names[i] = reg.String()
	}
	return SendSuccess(c, fiber.Map{
		"changed":  names,
		"settings": radio.DecodeSettings(regs),
	}, "Profile applied")
}

// deleteProfile handles DELETE /api/profiles/:name
func (p *ProfilesPlugin) deleteProfile(c *fiber.Ctx) error {
	path, ok := p.path(c)
	if !ok {
		return SendErrorMessage(c, 400, "Invalid profile name")
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return SendErrorMessage(c, 404, "Profile not found")
		}
		return SendError(c, 500, err)
	}
	return SendSuccess(c, nil, "Profile deleted")
}

// Register the plugin
func init() {
	Register("profiles", func(config interface{}) (Plugin, error) {
		opts, ok := config.(ProfilesOptions)
		if !ok {
			return nil, fmt.Errorf("invalid config for profiles plugin")
		}
		return NewProfilesPlugin(opts.Dir, opts.Store)
	})
}
