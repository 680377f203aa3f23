package maincmd

import "testing"

func TestCheckForHostspec(t *testing.T) {
	cases := []struct {
		arg      string
		wantOK   bool
		wantHost string
		wantPath string
		wantPort int
	}{
		{"/local/path", false, "", "", 0},
		{"relative/path", false, "", "", 0},
		{"host:path/to/file", true, "host", "path/to/file", 873},
		{"host::module/path", true, "host", "module/path", 873},
		{"rsync://host/module/path", true, "host", "module/path", 873},
		{"rsync://host:8730/module/path", true, "host", "module/path", 8730},
	}
	for _, tc := range cases {
		hs, ok := checkForHostspec(tc.arg)
		if ok != tc.wantOK {
			t.Errorf("checkForHostspec(%q): ok = %v, want %v", tc.arg, ok, tc.wantOK)
			continue
		}
		if !ok {
			continue
		}
		if hs.host != tc.wantHost || hs.path != tc.wantPath || hs.port != tc.wantPort {
			t.Errorf("checkForHostspec(%q) = %+v, want host=%q path=%q port=%d", tc.arg, hs, tc.wantHost, tc.wantPath, tc.wantPort)
		}
	}
}
