//go:build linux || darwin

package autostart

import (
	"os"
	"testing"
)

func TestManager_EnableDisableRoundTrip(t *testing.T) {
	m := newTestManager(t, "/usr/local/bin/quotaball")

	enabled, err := m.Enabled()
	if err != nil {
		t.Fatalf("Enabled() がエラーを返した: %v", err)
	}
	if enabled {
		t.Fatal("登録前にEnabled() = true")
	}

	if err := m.Enable(); err != nil {
		t.Fatalf("Enable() がエラーを返した: %v", err)
	}
	data, err := os.ReadFile(m.entryPath())
	if err != nil {
		t.Fatalf("登録ファイルが作成されていない: %v", err)
	}
	if string(data) != string(m.entryContent()) {
		t.Errorf("登録ファイルの内容が異なる:\n%s", data)
	}
	if enabled, _ := m.Enabled(); !enabled {
		t.Error("登録後にEnabled() = false")
	}

	// 再登録は上書きになる
	if err := m.Enable(); err != nil {
		t.Fatalf("2回目のEnable() がエラーを返した: %v", err)
	}

	if err := m.Disable(); err != nil {
		t.Fatalf("Disable() がエラーを返した: %v", err)
	}
	if enabled, _ := m.Enabled(); enabled {
		t.Error("解除後にEnabled() = true")
	}
	// 未登録での解除はエラーにならない
	if err := m.Disable(); err != nil {
		t.Errorf("未登録でのDisable() がエラーを返した: %v", err)
	}
}
