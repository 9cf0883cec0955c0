package wasm

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/viant/libsvm-wasm/engine"
)

// emptyModule is a valid WebAssembly module with no exports.
var emptyModule = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

func TestNew_MissingExports(t *testing.T) {
	_, err := New(context.Background(), Config{Binary: emptyModule, MountDir: t.TempDir()})
	if err == nil {
		t.Fatalf("expected error for module without exports")
	}
	for _, name := range []string{fnMalloc, fnTrainModel, fnLoadModel} {
		if !strings.Contains(err.Error(), name) {
			t.Fatalf("error %q does not name missing export %s", err, name)
		}
	}
	if strings.Contains(err.Error(), fnNrClass) {
		t.Fatalf("error %q names optional export %s", err, fnNrClass)
	}
}

func TestNew_InvalidModule(t *testing.T) {
	if _, err := New(context.Background(), Config{Binary: []byte("not wasm")}); err == nil {
		t.Fatalf("expected compile error")
	}
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error without path or binary")
	}
	if _, err := New(context.Background(), Config{Path: filepath.Join(t.TempDir(), "missing.wasm")}); err == nil {
		t.Fatalf("expected error for missing module file")
	}
}

func TestLoader_FailureIsPermanent(t *testing.T) {
	gw := engine.NewGateway(Loader(Config{Binary: emptyModule}))
	_, first := gw.Ready(context.Background())
	if first == nil {
		t.Fatalf("expected load failure")
	}
	_, second := gw.Ready(context.Background())
	if second == nil || second.Error() != first.Error() {
		t.Fatalf("second Ready = %v, want %v", second, first)
	}
}

func TestResolvePath(t *testing.T) {
	mount := t.TempDir()
	e := &Engine{mountDir: mount}

	got, err := e.ResolvePath(filepath.Join(mount, "models", "a.model"))
	if err != nil {
		t.Fatalf("ResolvePath failed: %v", err)
	}
	if got != "/models/a.model" {
		t.Fatalf("ResolvePath = %q, want /models/a.model", got)
	}
	if got, _ := e.ResolvePath(mount); got != "/" {
		t.Fatalf("ResolvePath(mount) = %q, want /", got)
	}
	if _, err := e.ResolvePath(filepath.Join(filepath.Dir(mount), "other")); err == nil {
		t.Fatalf("expected error for path outside mount")
	}

	root := &Engine{mountDir: "/"}
	if got, _ := root.ResolvePath("/tmp/x.model"); got != "/tmp/x.model" {
		t.Fatalf("ResolvePath under root = %q, want /tmp/x.model", got)
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yaml")
	doc := "path: /opt/libsvm.wasm\nmount_dir: /var/models\nstart_functions: [_initialize]\nmemory_limit_pages: 512\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Path != "/opt/libsvm.wasm" || cfg.MountDir != "/var/models" || cfg.MemoryLimitPages != 512 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if len(cfg.StartFunctions) != 1 || cfg.StartFunctions[0] != "_initialize" {
		t.Fatalf("start functions = %v", cfg.StartFunctions)
	}

	var empty Config
	empty.init()
	if empty.MountDir != "/" || len(empty.StartFunctions) != len(DefaultStartFunctions) {
		t.Fatalf("defaults not applied: %+v", empty)
	}
}
