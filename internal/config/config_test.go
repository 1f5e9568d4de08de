package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, dir, body string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(body), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

func TestLoad_DefaultWhenMissing(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RecentLimit != DefaultConfig().RecentLimit {
		t.Fatalf("RecentLimit = %d, want %d", cfg.RecentLimit, DefaultConfig().RecentLimit)
	}
	if cfg.LoTW.DuplicatePolicy != "compliant" {
		t.Errorf("LoTW.DuplicatePolicy = %q, want compliant", cfg.LoTW.DuplicatePolicy)
	}
	if cfg.CAT.FreqCmd != "FA;" {
		t.Errorf("CAT.FreqCmd = %q, want FA;", cfg.CAT.FreqCmd)
	}
}

func TestLoad_OverridesFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `
recent_limit = 25

[station]
call = "W9EN"
grid = "EN52"

[qrz]
username = "w9en"
password = "enc:abc"
upload = true

[lotw]
location = "Home"

[cat]
com_port = "/dev/ttyUSB0"
baudrate = 38400

[log]
level = "debug"
format = "json"
`)

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RecentLimit != 25 {
		t.Errorf("RecentLimit = %d, want 25", cfg.RecentLimit)
	}
	if cfg.Station.Grid != "EN52" || cfg.Station.Call != "W9EN" {
		t.Errorf("Station = %+v", cfg.Station)
	}
	if !cfg.QRZ.Upload || cfg.QRZ.Password != "enc:abc" {
		t.Errorf("QRZ = %+v", cfg.QRZ)
	}
	if cfg.LoTW.Location != "Home" || cfg.LoTW.TQSLPath != "tqsl" {
		t.Errorf("LoTW = %+v, want location Home with default tqsl path", cfg.LoTW)
	}
	if cfg.CAT.Baudrate != 38400 || cfg.CAT.ModeCmd != "MD;" {
		t.Errorf("CAT = %+v", cfg.CAT)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("Log = %+v", cfg.Log)
	}
}

func TestLoad_InvalidTOML(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `recent_limit = = 3`)

	if _, err := Load(tmpDir); err == nil {
		t.Fatalf("Load() expected error, got nil")
	}
}

func TestLoad_DisabledTools(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `disabled_tools = ["qso_delete", "qso_import"]`)

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.DisabledTools) != 2 {
		t.Fatalf("DisabledTools length = %d, want 2", len(cfg.DisabledTools))
	}
	if cfg.DisabledTools[0] != "qso_delete" {
		t.Errorf("DisabledTools[0] = %q, want %q", cfg.DisabledTools[0], "qso_delete")
	}
}

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()

	cfg := DefaultConfig()
	cfg.Station.Grid = "FN31"
	cfg.AllowedPaths = []string{"/tmp/adif"}
	if err := Save(tmpDir, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Station.Grid != "FN31" {
		t.Errorf("Station.Grid = %q, want FN31", loaded.Station.Grid)
	}
	if len(loaded.AllowedPaths) != 1 || loaded.AllowedPaths[0] != "/tmp/adif" {
		t.Errorf("AllowedPaths = %v", loaded.AllowedPaths)
	}
	if _, err := os.Stat(filepath.Join(tmpDir, FileName+".tmp")); !os.IsNotExist(err) {
		t.Errorf("temp file left behind")
	}
}

func TestWriteRead(t *testing.T) {
	var buf bytes.Buffer
	in := &Config{RecentLimit: 7, Station: StationConfig{Grid: "EN52"}}
	if err := Write(&buf, in); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	out, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if out.RecentLimit != 7 || out.Station.Grid != "EN52" {
		t.Errorf("Read() = %+v", out)
	}
}

func TestLoadWithRepo_BothPresent(t *testing.T) {
	globalDir := t.TempDir()
	repoRoot := t.TempDir()

	writeConfig(t, globalDir, "recent_limit = 20\ndisabled_tools = [\"qso_delete\"]\n[station]\ngrid = \"EN52\"\n")
	writeConfig(t, filepath.Join(repoRoot, ".qsolog"), "recent_limit = 5\ndisabled_tools = [\"qso_import\"]\n")

	cfg, err := LoadWithRepo(globalDir, repoRoot)
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}
	if cfg.RecentLimit != 5 {
		t.Errorf("RecentLimit = %d, want 5 (repo override)", cfg.RecentLimit)
	}
	if cfg.Station.Grid != "EN52" {
		t.Errorf("Station.Grid = %q, want EN52 (global kept)", cfg.Station.Grid)
	}
	if len(cfg.DisabledTools) != 2 {
		t.Errorf("DisabledTools length = %d, want 2", len(cfg.DisabledTools))
	}
}

func TestLoadWithRepo_NeitherPresent(t *testing.T) {
	cfg, err := LoadWithRepo(t.TempDir(), t.TempDir())
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}
	if cfg.RecentLimit != 10 {
		t.Errorf("RecentLimit = %d, want 10", cfg.RecentLimit)
	}
	if len(cfg.DisabledTools) != 0 {
		t.Errorf("DisabledTools = %v, want empty", cfg.DisabledTools)
	}
}

func TestMerge_ScalarOverride(t *testing.T) {
	base := &Config{RecentLimit: 10, CAT: CATConfig{Baudrate: 9600, ComPort: "COM3"}}
	overlay := &Config{RecentLimit: 3, CAT: CATConfig{ComPort: ""}}

	result := Merge(base, overlay)

	if result.RecentLimit != 3 {
		t.Errorf("RecentLimit = %d, want 3 (overlay)", result.RecentLimit)
	}
	if result.CAT.Baudrate != 9600 {
		t.Errorf("CAT.Baudrate = %d, want 9600 (base, overlay is zero)", result.CAT.Baudrate)
	}
	if result.CAT.ComPort != "COM3" {
		t.Errorf("CAT.ComPort = %q, want COM3", result.CAT.ComPort)
	}
}

func TestMerge_BooleanOr(t *testing.T) {
	base := &Config{AllowUnsafePaths: true, QRZ: QRZConfig{Upload: false}}
	overlay := &Config{AllowUnsafePaths: false, QRZ: QRZConfig{Upload: true}}

	result := Merge(base, overlay)

	if !result.AllowUnsafePaths {
		t.Error("AllowUnsafePaths should be true (base OR overlay)")
	}
	if !result.QRZ.Upload {
		t.Error("QRZ.Upload should be true (base OR overlay)")
	}
}

func TestMerge_ArrayMergeDedup(t *testing.T) {
	base := &Config{DisabledTools: []string{"qso_delete", "qso_import"}}
	overlay := &Config{DisabledTools: []string{"qso_import", " qso_export "}}

	result := Merge(base, overlay)

	want := []string{"qso_delete", "qso_import", "qso_export"}
	if len(result.DisabledTools) != len(want) {
		t.Fatalf("DisabledTools = %v, want %v", result.DisabledTools, want)
	}
	for i := range want {
		if result.DisabledTools[i] != want[i] {
			t.Errorf("DisabledTools[%d] = %q, want %q", i, result.DisabledTools[i], want[i])
		}
	}
}

func TestMerge_DisabledTypes(t *testing.T) {
	result := Merge(&Config{DisabledTypes: []string{"station"}}, &Config{DisabledTypes: []string{"station", "qso"}})
	if len(result.DisabledTypes) != 2 || result.DisabledTypes[1] != "qso" {
		t.Errorf("DisabledTypes = %v, want [station qso]", result.DisabledTypes)
	}
}

func TestFindRepoConfig_InParentDir(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, filepath.Join(tmpDir, ".qsolog"), "")
	configPath := filepath.Join(tmpDir, ".qsolog", FileName)

	subdir := filepath.Join(tmpDir, "subdir", "deeper")
	if err := os.MkdirAll(subdir, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}

	if found := FindRepoConfig(subdir); found != configPath {
		t.Errorf("FindRepoConfig() = %q, want %q", found, configPath)
	}
	if found := FindRepoConfig(tmpDir); found != configPath {
		t.Errorf("FindRepoConfig() = %q, want %q", found, configPath)
	}
}

func TestFindRepoConfig_NotFound(t *testing.T) {
	if found := FindRepoConfig(t.TempDir()); found != "" {
		t.Errorf("FindRepoConfig() = %q, want empty string", found)
	}
	if found := FindRepoConfig(""); found != "" {
		t.Errorf("FindRepoConfig(\"\") = %q, want empty string", found)
	}
}

func TestLoad_SetsBaseDir(t *testing.T) {
	tmpDir := t.TempDir()
	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BaseDir != tmpDir {
		t.Errorf("BaseDir = %q, want %q", cfg.BaseDir, tmpDir)
	}
	if want := filepath.Join(tmpDir, "exports"); cfg.ExportsDir() != want {
		t.Errorf("ExportsDir() = %q, want %q", cfg.ExportsDir(), want)
	}
}

func TestDefaultBaseDir_Env(t *testing.T) {
	t.Setenv("QSOLOG_HOME", "/srv/qsolog")
	dir, err := DefaultBaseDir()
	if err != nil {
		t.Fatalf("DefaultBaseDir() error = %v", err)
	}
	if dir != "/srv/qsolog" {
		t.Errorf("DefaultBaseDir() = %q, want /srv/qsolog", dir)
	}
}
