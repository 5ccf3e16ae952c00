package coordinates

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/cordum/pkgvault/core/repoerr"
)

const (
	npmScope   = "scope"
	npmName    = "name"
	npmVersion = "version"

	npmScopeMarker = "@"
	npmExtension   = ".tgz"
)

// npmNamePattern follows https://docs.npmjs.com/files/package.json#name.
var npmNamePattern = regexp.MustCompile(`^[a-z0-9][\w\-.]*$`)

// NpmCoordinates identifies an npm package tarball.
//
// Path form: {scope|name}/{name}/{version}/{name}-{version}.tgz
type NpmCoordinates struct {
	fields fieldSet
}

func newNpm() *NpmCoordinates {
	return &NpmCoordinates{fields: defineFields(npmFieldNames...)}
}

// NewNpm builds validated npm coordinates; scope may be empty.
func NewNpm(scope, name, version string) (*NpmCoordinates, error) {
	c := newNpm()
	if err := c.SetScope(scope); err != nil {
		return nil, err
	}
	if err := c.SetName(name); err != nil {
		return nil, err
	}
	if err := c.SetVersion(version); err != nil {
		return nil, err
	}
	return c, nil
}

// NpmOf builds coordinates from a package name that may carry its scope
// inline, e.g. "@types/node".
func NpmOf(name, version string) (*NpmCoordinates, error) {
	if !strings.Contains(name, "/") {
		return NewNpm("", name, version)
	}
	parts := strings.Split(name, "/")
	if len(parts) != 2 {
		return nil, repoerr.FieldValidation(string(LayoutNpm), npmName, name, "expected {scope}/{name}")
	}
	return NewNpm(parts[0], parts[1], version)
}

// NpmOfScoped is NewNpm under the name used by upload handlers.
func NpmOfScoped(scope, name, version string) (*NpmCoordinates, error) {
	return NewNpm(scope, name, version)
}

// ParseNpm parses a storage path in the npm layout.
func ParseNpm(path string) (*NpmCoordinates, error) {
	segments := strings.Split(path, "/")
	if len(segments) != 4 {
		return nil, repoerr.Parse(string(LayoutNpm), path, "",
			"npm artifact path should be in the form of '{group}/{name}/{version}/{name}-{version}.tgz'")
	}
	group, name, version, file := segments[0], segments[1], segments[2], segments[3]

	scope := ""
	if strings.HasPrefix(group, npmScopeMarker) {
		scope = group
	} else if group != name {
		return nil, repoerr.Parse(string(LayoutNpm), path, group, "unscoped package group must equal the package name")
	}
	if want := name + "-" + version + npmExtension; file != want {
		return nil, repoerr.Parse(string(LayoutNpm), path, file, fmt.Sprintf("expected package file %q", want))
	}

	c, err := NewNpm(scope, name, version)
	if err != nil {
		var fe *repoerr.Error
		if errors.As(err, &fe) {
			perr := repoerr.Parse(string(LayoutNpm), path, fe.Value, fe.Msg)
			perr.Field = fe.Field
			perr.Err = err
			return nil, perr
		}
		return nil, err
	}
	return c, nil
}

func (c *NpmCoordinates) Layout() Layout { return LayoutNpm }

// ID is the package name.
func (c *NpmCoordinates) ID() string { return c.Name() }

func (c *NpmCoordinates) Scope() string   { return c.values().get(npmScope) }
func (c *NpmCoordinates) Name() string    { return c.values().get(npmName) }
func (c *NpmCoordinates) Version() string { return c.values().get(npmVersion) }

// Group is the scope for scoped packages and the name otherwise.
func (c *NpmCoordinates) Group() string {
	if scope := c.Scope(); scope != "" {
		return scope
	}
	return c.Name()
}

// FullName is the package name as written in package.json.
func (c *NpmCoordinates) FullName() string {
	if scope := c.Scope(); scope != "" {
		return scope + "/" + c.Name()
	}
	return c.Name()
}

// SetScope validates and stores the scope. An empty scope clears it.
func (c *NpmCoordinates) SetScope(scope string) error {
	if scope == "" {
		c.values().set(npmScope, "")
		return nil
	}
	if !strings.HasPrefix(scope, npmScopeMarker) {
		return repoerr.FieldValidation(string(LayoutNpm), npmScope, scope, "scope should start with '@'")
	}
	if !npmNamePattern.MatchString(strings.TrimPrefix(scope, npmScopeMarker)) {
		return repoerr.FieldValidation(string(LayoutNpm), npmScope, scope, "scope name should follow the npm naming rules")
	}
	c.values().set(npmScope, scope)
	return nil
}

func (c *NpmCoordinates) SetName(name string) error {
	if !npmNamePattern.MatchString(name) {
		return repoerr.FieldValidation(string(LayoutNpm), npmName, name,
			"the artifact's name should follow the npm specification (https://docs.npmjs.com/files/package.json#name)")
	}
	c.values().set(npmName, name)
	return nil
}

func (c *NpmCoordinates) SetVersion(version string) error {
	if _, err := semver.StrictNewVersion(version); err != nil {
		ferr := repoerr.FieldValidation(string(LayoutNpm), npmVersion, version, "not a semantic version")
		ferr.Err = err
		return ferr
	}
	c.values().set(npmVersion, version)
	return nil
}

// SemVer returns the parsed version.
func (c *NpmCoordinates) SemVer() *semver.Version {
	v, _ := semver.StrictNewVersion(c.Version())
	return v
}

func (c *NpmCoordinates) Path() string {
	name := c.Name()
	version := c.Version()
	return fmt.Sprintf("%s/%s/%s/%s-%s%s", c.Group(), name, version, name, version, npmExtension)
}

func (c *NpmCoordinates) Fields() []Field { return c.values().fields() }

func (c *NpmCoordinates) String() string {
	return c.FullName() + "@" + c.Version()
}

var npmFieldNames = []string{npmScope, npmName, npmVersion}

// values lets the zero value be used through its setters.
func (c *NpmCoordinates) values() *fieldSet {
	if c.fields.values == nil {
		c.fields = defineFields(npmFieldNames...)
	}
	return &c.fields
}
