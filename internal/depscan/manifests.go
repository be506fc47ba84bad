package depscan

import (
	"encoding/json"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/package-url/packageurl-go"
)

// OSV ecosystem names.
const (
	EcosystemPyPI = "PyPI"
	EcosystemNPM  = "npm"
)

var (
	requirementLine = regexp.MustCompile(`^([a-zA-Z0-9_.-]+)\s*([=><~!]+)\s*([0-9][0-9a-zA-Z.]*)`)
	npmVersionJunk  = regexp.MustCompile(`[^0-9.]`)
)

// Pin is one package version declared by a dependency manifest.
type Pin struct {
	File      string
	Ecosystem string
	Name      string
	Version   string
}

// Purl renders the pin as a package URL.
func (p Pin) Purl() string {
	purlType := packageurl.TypePyPi
	namespace := ""
	name := p.Name
	if p.Ecosystem == EcosystemNPM {
		purlType = packageurl.TypeNPM
		if strings.HasPrefix(name, "@") {
			if i := strings.Index(name, "/"); i > 0 {
				namespace, name = name[:i], name[i+1:]
			}
		}
	} else {
		name = strings.ToLower(name)
	}
	return packageurl.NewPackageURL(purlType, namespace, name, p.Version, nil, "").ToString()
}

// ParseRequirements extracts pinned packages from a pip requirements file.
func ParseRequirements(rel string, data []byte) []Pin {
	var pins []Pin
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		m := requirementLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		pins = append(pins, Pin{File: rel, Ecosystem: EcosystemPyPI, Name: m[1], Version: m[3]})
	}
	return pins
}

type packageJSON struct {
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

// ParsePackageJSON extracts dependencies from package.json. Range operators
// are stripped, so "^1.2.3" is checked as 1.2.3.
func ParsePackageJSON(rel string, data []byte) ([]Pin, error) {
	var pkg packageJSON
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, err
	}

	merged := make(map[string]string, len(pkg.Dependencies)+len(pkg.DevDependencies))
	for k, v := range pkg.Dependencies {
		merged[k] = v
	}
	for k, v := range pkg.DevDependencies {
		merged[k] = v
	}

	names := make([]string, 0, len(merged))
	for k := range merged {
		names = append(names, k)
	}
	sort.Strings(names)

	var pins []Pin
	for _, name := range names {
		version := strings.Trim(npmVersionJunk.ReplaceAllString(merged[name], ""), ".")
		if version == "" {
			continue
		}
		pins = append(pins, Pin{File: rel, Ecosystem: EcosystemNPM, Name: name, Version: version})
	}
	return pins, nil
}

// isRequirementsFile matches requirements*.txt.
func isRequirementsFile(name string) bool {
	return strings.HasPrefix(name, "requirements") && strings.HasSuffix(name, ".txt")
}

func readPins(abs, rel, name string) ([]Pin, error) {
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, err
	}
	if name == "package.json" {
		return ParsePackageJSON(rel, data)
	}
	return ParseRequirements(rel, data), nil
}
