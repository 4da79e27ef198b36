package config

import (
	"encoding/json"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
)

// manifest is a project file that may carry the project's name.
type manifest struct {
	file string
	name func(data []byte) string
}

// manifests are probed in order. go.mod comes first because jodex projects
// driven from a Go module often also carry a package.json for tooling.
var manifests = []manifest{
	{"go.mod", goModuleName},
	{"package.json", npmPackageName},
	{"pyproject.toml", pythonProjectName},
	{"Cargo.toml", cargoPackageName},
}

// DetectProjectName infers the name shown in the TUI header, status output
// and notifications when jodex.toml leaves project.name empty. It returns the
// first name found in a manifest in dir, else the directory's base name.
// Unreadable or malformed manifests are skipped.
func DetectProjectName(dir string) string {
	for _, m := range manifests {
		data, err := os.ReadFile(filepath.Join(dir, m.file))
		if err != nil {
			continue
		}
		if name := strings.TrimSpace(m.name(data)); name != "" {
			return name
		}
	}
	return filepath.Base(dir)
}

// majorSuffix matches the /vN element Go appends to major-version module paths.
var majorSuffix = regexp.MustCompile(`^v[0-9]+$`)

// goModuleName returns the last meaningful element of the module path:
// "github.com/acme/widget/v2" yields "widget".
func goModuleName(data []byte) string {
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 || fields[0] != "module" {
			continue
		}
		mod := strings.Trim(fields[1], "\"`")
		if base := path.Base(mod); majorSuffix.MatchString(base) && path.Dir(mod) != "." {
			return path.Base(path.Dir(mod))
		}
		return path.Base(mod)
	}
	return ""
}

// npmPackageName drops the scope of "@scope/name".
func npmPackageName(data []byte) string {
	var pkg struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return ""
	}
	if i := strings.LastIndex(pkg.Name, "/"); strings.HasPrefix(pkg.Name, "@") && i >= 0 {
		return pkg.Name[i+1:]
	}
	return pkg.Name
}

// pythonProjectName reads the PEP 621 [project] table, then Poetry's.
func pythonProjectName(data []byte) string {
	var py struct {
		Project struct {
			Name string `toml:"name"`
		} `toml:"project"`
		Tool struct {
			Poetry struct {
				Name string `toml:"name"`
			} `toml:"poetry"`
		} `toml:"tool"`
	}
	if _, err := toml.Decode(string(data), &py); err != nil {
		return ""
	}
	if py.Project.Name != "" {
		return py.Project.Name
	}
	return py.Tool.Poetry.Name
}

func cargoPackageName(data []byte) string {
	var cargo struct {
		Package struct {
			Name string `toml:"name"`
		} `toml:"package"`
	}
	if _, err := toml.Decode(string(data), &cargo); err != nil {
		return ""
	}
	return cargo.Package.Name
}
