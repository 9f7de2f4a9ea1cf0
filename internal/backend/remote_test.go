package backend

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"path"
	"sort"
	"strings"
	"testing"

	"github.com/cptspacemanspiff/battery-probe/internal/battery"
)

// fakeRunner serves ls and cat from an in-memory tree.
type fakeRunner struct {
	files    map[string]string
	commands []string
}

func (f *fakeRunner) Run(cmd string) (string, error) {
	f.commands = append(f.commands, cmd)
	verb, arg, _ := strings.Cut(cmd, " ")
	arg = strings.TrimPrefix(arg, "-1 ")
	arg = strings.TrimSuffix(strings.TrimPrefix(arg, "'"), "'")
	notFound := &commandError{cmd: cmd, stderr: verb + ": " + arg + ": No such file or directory", err: errors.New("exit status 1")}

	switch verb {
	case "cat":
		if v, ok := f.files[arg]; ok {
			return v, nil
		}
		return "", notFound
	case "ls":
		seen := map[string]bool{}
		for p := range f.files {
			if dir, rest, ok := strings.Cut(p, arg+"/"); ok && dir == "" {
				seen[strings.Split(rest, "/")[0]] = true
			}
		}
		if len(seen) == 0 {
			return "", notFound
		}
		var names []string
		for n := range seen {
			names = append(names, n)
		}
		sort.Strings(names)
		return strings.Join(names, "\n") + "\n", nil
	}
	return "", fmt.Errorf("unexpected command %q", cmd)
}

func TestRemoteSysfs_Devices(t *testing.T) {
	root := "/sys/class/power_supply"
	run := &fakeRunner{files: map[string]string{
		path.Join(root, "AC/type"):           "Mains\n",
		path.Join(root, "BAT0/type"):         "Battery\n",
		path.Join(root, "BAT0/energy_now"):   "30000000\n",
		path.Join(root, "BAT0/energy_full"):  "60000000\n",
		path.Join(root, "BAT0/status"):       "Discharging\n",
		path.Join(root, "BAT0/power_now"):    "7500000\n",
		path.Join(root, "BAT0/manufacturer"): "LGC\n",
	}}
	s := newRemoteSysfs(root, run)
	if s.Name() != NameRemote {
		t.Fatalf("Name() = %q, want %q", s.Name(), NameRemote)
	}

	devices, err := s.Devices()
	if err != nil {
		t.Fatalf("Devices() error = %v", err)
	}
	if got := strings.Join(deviceIDs(devices), ","); got != "BAT0" {
		t.Fatalf("Devices() = %s, want BAT0", got)
	}

	b, err := battery.Normalize(devices[0])
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if b.StateOfCharge == nil || math.Abs(*b.StateOfCharge-50) > 1e-9 {
		t.Fatalf("StateOfCharge = %v, want 50", b.StateOfCharge)
	}
	// 30 Wh at 7.5 W
	if b.TimeToEmpty == nil || math.Abs(*b.TimeToEmpty-14400) > 1e-6 {
		t.Fatalf("TimeToEmpty = %v, want 14400", b.TimeToEmpty)
	}
	if b.Vendor == nil || *b.Vendor != "LGC" {
		t.Fatalf("Vendor = %v, want LGC", b.Vendor)
	}
	for _, cmd := range run.commands {
		if !strings.HasPrefix(cmd, "ls -1 '") && !strings.HasPrefix(cmd, "cat '") {
			t.Fatalf("unexpected command %q", cmd)
		}
	}
}

func TestRemoteSysfs_FullOnMains(t *testing.T) {
	root := "/sys/class/power_supply"
	run := &fakeRunner{files: map[string]string{
		path.Join(root, "AC/type"):       "Mains\n",
		path.Join(root, "AC/online"):     "1\n",
		path.Join(root, "BAT0/type"):     "Battery\n",
		path.Join(root, "BAT0/status"):   "Discharging\n",
		path.Join(root, "BAT0/capacity"): "100\n",
	}}

	devices, err := newRemoteSysfs(root, run).Devices()
	if err != nil || len(devices) != 1 {
		t.Fatalf("Devices() = %v, %v, want BAT0", deviceIDs(devices), err)
	}
	b, err := battery.Normalize(devices[0])
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if b.State != battery.StateFull {
		t.Fatalf("State = %v, want full", b.State)
	}
}

func TestRemoteFS_ClassifiesErrors(t *testing.T) {
	fsys := remoteFS{run: &fakeRunner{files: map[string]string{}}}

	if _, err := fsys.ReadFile("/sys/class/power_supply/BAT0/uevent"); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("ReadFile() error = %v, want fs.ErrNotExist", err)
	}
	if _, err := fsys.ReadFile("/tmp/$(reboot)"); err == nil {
		t.Fatal("ReadFile() error = nil, want invalid path")
	}
	if _, err := fsys.ReadDir("relative/path"); err == nil {
		t.Fatal("ReadDir() error = nil, want invalid path")
	}
}

func TestShellEscape(t *testing.T) {
	tests := map[string]string{
		"/sys/class":  "'/sys/class'",
		"it's":        `'it'\''s'`,
		"":            "''",
		"a b; rm -rf": "'a b; rm -rf'",
	}
	for in, want := range tests {
		if got := shellEscape(in); got != want {
			t.Fatalf("shellEscape(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestValidatePath(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/sys/class/power_supply/BAT0/uevent", true},
		{"/sys/class/power_supply/ucsi-source-psy-USBC000:001", true},
		{"", false},
		{"sys/class", false},
		{"/sys/../etc/shadow", false},
		{"/sys/class/`id`", false},
		{"/sys/class/a b", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := validatePath(tt.path); got != tt.want {
				t.Fatalf("validatePath(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestOpenRemote_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  RemoteConfig
	}{
		{"missing host", RemoteConfig{User: "root", Password: "x"}},
		{"missing user", RemoteConfig{Host: "example.com", Password: "x"}},
		{"bad root", RemoteConfig{Host: "example.com", User: "root", Password: "x", SysfsRoot: "/sys/$(id)"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := OpenRemote(tt.cfg, discardLogger()); err == nil {
				t.Fatal("OpenRemote() error = nil, want validation error")
			}
		})
	}
}

func TestBuildSSHConfig(t *testing.T) {
	t.Setenv("SSH_AUTH_SOCK", "")

	if _, err := buildSSHConfig(RemoteConfig{User: "root", InsecureIgnoreHostKey: true}); err == nil {
		t.Fatal("buildSSHConfig() error = nil, want missing auth error")
	}
	if _, err := buildSSHConfig(RemoteConfig{User: "root", KeyPath: "/nonexistent/id_ed25519", InsecureIgnoreHostKey: true}); err == nil {
		t.Fatal("buildSSHConfig() error = nil, want key read error")
	}

	cfg, err := buildSSHConfig(RemoteConfig{User: "root", Password: "secret", InsecureIgnoreHostKey: true})
	if err != nil {
		t.Fatalf("buildSSHConfig() error = %v", err)
	}
	if cfg.User != "root" || len(cfg.Auth) != 1 || cfg.HostKeyCallback == nil {
		t.Fatalf("buildSSHConfig() = %+v, want one auth method for root", cfg)
	}

	if _, err := buildSSHConfig(RemoteConfig{User: "root", Password: "secret", KnownHostsPath: "/nonexistent/known_hosts"}); err == nil {
		t.Fatal("buildSSHConfig() error = nil, want known_hosts error")
	}
}
