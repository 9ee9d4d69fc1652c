package plugins

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"gopkg.in/yaml.v3"

	"github.com/linht/eos/protocol"
	"github.com/linht/eos/radio"
)

func newProfilesApp(t *testing.T) (*fiber.App, *RadioPlugin, string) {
	t.Helper()
	app, rp, _, _ := newRadioApp(t)

	dir := t.TempDir()
	pp, err := NewProfilesPlugin(dir, rp)
	if err != nil {
		t.Fatalf("NewProfilesPlugin() error = %v", err)
	}
	pp.RegisterRoutes(app)
	return app, rp, dir
}

func TestProfileSaveAndList(t *testing.T) {
	app, _, dir := newProfilesApp(t)

	status, _ := doRequest(t, app, "POST", "/api/profiles/default", `{"description":"power-on values"}`)
	if status != 200 {
		t.Fatalf("save status = %d", status)
	}

	data, err := os.ReadFile(filepath.Join(dir, "default.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	if !strings.Contains(text, "FREQ2: 0x5E") || !strings.Contains(text, "description: power-on values") {
		t.Errorf("profile file:\n%s", text)
	}
	if strings.Index(text, "SYNC1") > strings.Index(text, "IOCFG0") {
		t.Error("registers not in address order")
	}

	status, resp := doRequest(t, app, "GET", "/api/profiles/", "")
	var names []string
	if err := json.Unmarshal(resp.Data, &names); err != nil {
		t.Fatal(err)
	}
	if status != 200 || !reflect.DeepEqual(names, []string{"default"}) {
		t.Errorf("list = %d %v", status, names)
	}

	status, resp = doRequest(t, app, "GET", "/api/profiles/default", "")
	if status != 200 || !strings.HasPrefix(string(resp.Data), `{"description":"power-on values","registers":{"SYNC1":"0xD3"`) {
		t.Errorf("load = %d %s", status, resp.Data)
	}
}

func TestProfileApply(t *testing.T) {
	app, rp, dir := newProfilesApp(t)

	profile := "# hand edited\ndescription: channel seven\nregisters:\n  CHANNR: 0x07\n  PA_TABLE0: 0xFE\n"
	if err := os.WriteFile(filepath.Join(dir, "ch7.yaml"), []byte(profile), 0644); err != nil {
		t.Fatal(err)
	}

	status, resp := doRequest(t, app, "POST", "/api/profiles/ch7/apply", "")
	if status != 200 {
		t.Fatalf("apply = %d %+v", status, resp)
	}
	regs := rp.Snapshot()
	if regs.Get(radio.CHANNR) != 7 || regs.Get(radio.PA_TABLE0) != 0xFE || regs.Get(radio.FREQ2) != 0x5E {
		t.Errorf("registers after apply: CHANNR=%02X PA=%02X FREQ2=%02X",
			regs.Get(radio.CHANNR), regs.Get(radio.PA_TABLE0), regs.Get(radio.FREQ2))
	}

	// Saving over the hand-edited file keeps its comment and key order
	if status, _ := doRequest(t, app, "POST", "/api/radio/channel", `{"value":"9"}`); status != 200 {
		t.Fatalf("channel status = %d", status)
	}
	if status, _ := doRequest(t, app, "POST", "/api/profiles/ch7", ""); status != 200 {
		t.Fatalf("save status = %d", status)
	}
	data, err := os.ReadFile(filepath.Join(dir, "ch7.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	if !strings.Contains(text, "# hand edited") || !strings.Contains(text, "CHANNR: 0x09") {
		t.Errorf("saved profile:\n%s", text)
	}
	if strings.Index(text, "CHANNR") > strings.Index(text, "SYNC1") {
		t.Error("existing keys were reordered")
	}
}

func TestProfileApplySendsChangedRegisters(t *testing.T) {
	app, rp, _, _ := newRadioApp(t)
	dir := t.TempDir()
	pp, err := NewProfilesPlugin(dir, rp)
	if err != nil {
		t.Fatal(err)
	}
	pp.RegisterRoutes(app)

	link := rp.link.(interface{ Frames() [][]byte })
	if err := os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("registers:\n  ADDR: 0x42\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if status, _ := doRequest(t, app, "POST", "/api/profiles/a/apply", ""); status != 200 {
		t.Fatalf("apply status = %d", status)
	}

	frames := link.Frames()
	if len(frames) != 1 {
		t.Fatalf("sent %d frames, want 1", len(frames))
	}
	p, err := protocol.DecodeFrame(frames[0])
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(p.Payload, []byte{0x05, 0x42}) {
		t.Errorf("payload = % X", p.Payload)
	}
}

func TestProfileErrors(t *testing.T) {
	app, rp, dir := newProfilesApp(t)
	before := rp.Snapshot()

	if err := os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("registers:\n  NOPE: 1\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "big.yaml"), []byte("registers:\n  ADDR: 300\n"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		method, path string
		want         int
	}{
		{"POST", "/api/profiles/bad/apply", 400},
		{"POST", "/api/profiles/big/apply", 400},
		{"POST", "/api/profiles/missing/apply", 404},
		{"GET", "/api/profiles/missing", 404},
		{"GET", "/api/profiles/bad~name", 400},
		{"DELETE", "/api/profiles/missing", 404},
		{"DELETE", "/api/profiles/bad", 200},
	}
	for _, tt := range tests {
		if status, _ := doRequest(t, app, tt.method, tt.path, ""); status != tt.want {
			t.Errorf("%s %s = %d, want %d", tt.method, tt.path, status, tt.want)
		}
	}
	if rp.Snapshot() != before {
		t.Error("failed apply changed registers")
	}
}

func TestParseProfileRoundTrip(t *testing.T) {
	regs := radio.ResetRegisters()
	regs.Set(radio.MDMCFG3, 0x3B)

	data, err := yaml.Marshal(newProfileNode(regs, "x"))
	if err != nil {
		t.Fatal(err)
	}
	var base radio.Registers
	got, err := parseProfile(data, base)
	if err != nil {
		t.Fatalf("parseProfile() error = %v", err)
	}
	if got != regs {
		t.Errorf("parseProfile() = % X, want % X", got, regs)
	}
}

func TestProfileSaveAddsMissingDescription(t *testing.T) {
	app, _, dir := newProfilesApp(t)

	path := filepath.Join(dir, "bare.yaml")
	if err := os.WriteFile(path, []byte("registers:\n  CHANNR: 0x00\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if status, _ := doRequest(t, app, "POST", "/api/profiles/bare", `{"description":"bench test"}`); status != 200 {
		t.Fatalf("save status = %d", status)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var doc struct {
		Description string `yaml:"description"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}
	if doc.Description != "bench test" {
		t.Errorf("description = %q in:\n%s", doc.Description, data)
	}
}
