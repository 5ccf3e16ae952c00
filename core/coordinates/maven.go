package coordinates

import (
	"errors"
	"regexp"
	"strings"

	"github.com/cordum/pkgvault/core/repoerr"
)

const (
	mavenGroupID    = "groupId"
	mavenArtifactID = "artifactId"
	mavenVersion    = "version"
	mavenClassifier = "classifier"
	mavenExtension  = "extension"

	mavenSnapshotSuffix   = "-SNAPSHOT"
	mavenDefaultExtension = "jar"
	mavenMinPathSegments  = 4
)

var (
	mavenGroupPattern      = regexp.MustCompile(`^[A-Za-z0-9_\-]+(\.[A-Za-z0-9_\-]+)*$`)
	mavenArtifactPattern   = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_\-.]*$`)
	mavenVersionPattern    = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_\-.+]*$`)
	mavenClassifierPattern = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_\-]*$`)
	mavenExtensionPattern  = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_\-.]*$`)

	// Timestamped snapshot versions: 1.0-20240101.120000-3
	mavenTimestampPattern = regexp.MustCompile(`^(.+)-(\d{8}\.\d{6}-\d+)$`)
	mavenTimestampPrefix  = regexp.MustCompile(`^\d{8}\.\d{6}-\d+`)
)

// MavenCoordinates identifies a file in a Maven 2 repository.
//
// Path form: {groupId with / separators}/{artifactId}/{baseVersion}/{artifactId}-{version}[-{classifier}].{extension}
type MavenCoordinates struct {
	fields fieldSet
}

func newMaven() *MavenCoordinates {
	return &MavenCoordinates{fields: defineFields(mavenFieldNames...)}
}

// NewMaven2 builds validated Maven coordinates; classifier may be empty and
// an empty extension defaults to "jar".
func NewMaven2(groupID, artifactID, version, classifier, extension string) (*MavenCoordinates, error) {
	if extension == "" {
		extension = mavenDefaultExtension
	}
	c := newMaven()
	setters := []struct {
		set   func(string) error
		value string
	}{
		{c.SetGroupID, groupID},
		{c.SetArtifactID, artifactID},
		{c.SetVersion, version},
		{c.SetClassifier, classifier},
		{c.SetExtension, extension},
	}
	for _, s := range setters {
		if err := s.set(s.value); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MavenOf parses a GAV string:
//
//	groupId:artifactId:version
//	groupId:artifactId:version:extension
//	groupId:artifactId:version:classifier:extension
func MavenOf(gav string) (*MavenCoordinates, error) {
	parts := strings.Split(gav, ":")
	switch len(parts) {
	case 3:
		return NewMaven2(parts[0], parts[1], parts[2], "", "")
	case 4:
		return NewMaven2(parts[0], parts[1], parts[2], "", parts[3])
	case 5:
		return NewMaven2(parts[0], parts[1], parts[2], parts[3], parts[4])
	default:
		return nil, repoerr.FieldValidation(string(LayoutMaven2), "gav", gav,
			"expected groupId:artifactId:version[:classifier]:[extension]")
	}
}

// ParseMaven2 parses a storage path in the Maven 2 layout.
func ParseMaven2(path string) (*MavenCoordinates, error) {
	layout := string(LayoutMaven2)
	segments := strings.Split(path, "/")
	if len(segments) < mavenMinPathSegments {
		return nil, repoerr.Parse(layout, path, "",
			"maven artifact path should be in the form of '{groupId}/{artifactId}/{version}/{file}'")
	}
	n := len(segments)
	groupSegments := segments[:n-3]
	artifactID, dirVersion, file := segments[n-3], segments[n-2], segments[n-1]

	for _, seg := range groupSegments {
		if seg == "" || strings.Contains(seg, ".") {
			return nil, repoerr.Parse(layout, path, seg, "invalid group directory")
		}
	}
	if mavenTimestampPattern.MatchString(dirVersion) {
		return nil, repoerr.Parse(layout, path, dirVersion, "timestamped versions live in a -SNAPSHOT directory")
	}

	version := dirVersion
	rest, ok := strings.CutPrefix(file, artifactID+"-"+dirVersion)
	if !ok {
		base, isSnapshot := strings.CutSuffix(dirVersion, mavenSnapshotSuffix)
		if !isSnapshot {
			return nil, repoerr.Parse(layout, path, file, "file name should start with '{artifactId}-{version}'")
		}
		prefix := artifactID + "-" + base + "-"
		tail, ok := strings.CutPrefix(file, prefix)
		if !ok {
			return nil, repoerr.Parse(layout, path, file, "file name should start with '{artifactId}-{version}'")
		}
		stamp := mavenTimestampPrefix.FindString(tail)
		if stamp == "" {
			return nil, repoerr.Parse(layout, path, file, "snapshot file name should carry '{version}' or a timestamped version")
		}
		version = base + "-" + stamp
		rest = tail[len(stamp):]
	}

	classifier := ""
	var extension string
	switch {
	case strings.HasPrefix(rest, "-"):
		classifierAndExt := rest[1:]
		dot := strings.Index(classifierAndExt, ".")
		if dot <= 0 {
			return nil, repoerr.Parse(layout, path, file, "missing extension after classifier")
		}
		classifier = classifierAndExt[:dot]
		extension = classifierAndExt[dot+1:]
	case strings.HasPrefix(rest, "."):
		extension = rest[1:]
	default:
		return nil, repoerr.Parse(layout, path, file, "expected '-{classifier}' or '.{extension}' after the version")
	}
	if extension == "" {
		return nil, repoerr.Parse(layout, path, file, "missing extension")
	}

	c, err := NewMaven2(strings.Join(groupSegments, "."), artifactID, version, classifier, extension)
	if err != nil {
		var fe *repoerr.Error
		if errors.As(err, &fe) {
			perr := repoerr.Parse(layout, path, fe.Value, fe.Msg)
			perr.Field = fe.Field
			perr.Err = err
			return nil, perr
		}
		return nil, err
	}
	return c, nil
}

func (c *MavenCoordinates) Layout() Layout { return LayoutMaven2 }

// ID is the artifactId.
func (c *MavenCoordinates) ID() string { return c.ArtifactID() }

func (c *MavenCoordinates) GroupID() string    { return c.values().get(mavenGroupID) }
func (c *MavenCoordinates) ArtifactID() string { return c.values().get(mavenArtifactID) }
func (c *MavenCoordinates) Version() string    { return c.values().get(mavenVersion) }
func (c *MavenCoordinates) Classifier() string { return c.values().get(mavenClassifier) }
func (c *MavenCoordinates) Extension() string  { return c.values().get(mavenExtension) }

// BaseVersion maps a timestamped snapshot version to its -SNAPSHOT form.
func (c *MavenCoordinates) BaseVersion() string {
	version := c.Version()
	if m := mavenTimestampPattern.FindStringSubmatch(version); m != nil {
		return m[1] + mavenSnapshotSuffix
	}
	return version
}

// IsSnapshot reports whether the version is a snapshot, timestamped or not.
func (c *MavenCoordinates) IsSnapshot() bool {
	return strings.HasSuffix(c.BaseVersion(), mavenSnapshotSuffix)
}

func (c *MavenCoordinates) SetGroupID(groupID string) error {
	if !mavenGroupPattern.MatchString(groupID) {
		return repoerr.FieldValidation(string(LayoutMaven2), mavenGroupID, groupID, "expected dot separated identifiers")
	}
	c.values().set(mavenGroupID, groupID)
	return nil
}

func (c *MavenCoordinates) SetArtifactID(artifactID string) error {
	if !mavenArtifactPattern.MatchString(artifactID) {
		return repoerr.FieldValidation(string(LayoutMaven2), mavenArtifactID, artifactID, "invalid characters")
	}
	c.values().set(mavenArtifactID, artifactID)
	return nil
}

func (c *MavenCoordinates) SetVersion(version string) error {
	if !mavenVersionPattern.MatchString(version) {
		return repoerr.FieldValidation(string(LayoutMaven2), mavenVersion, version, "invalid characters")
	}
	c.values().set(mavenVersion, version)
	return nil
}

// SetClassifier validates and stores the classifier. Empty clears it.
func (c *MavenCoordinates) SetClassifier(classifier string) error {
	if classifier != "" && !mavenClassifierPattern.MatchString(classifier) {
		return repoerr.FieldValidation(string(LayoutMaven2), mavenClassifier, classifier, "invalid characters")
	}
	c.values().set(mavenClassifier, classifier)
	return nil
}

func (c *MavenCoordinates) SetExtension(extension string) error {
	if !mavenExtensionPattern.MatchString(extension) {
		return repoerr.FieldValidation(string(LayoutMaven2), mavenExtension, extension, "invalid characters")
	}
	c.values().set(mavenExtension, extension)
	return nil
}

func (c *MavenCoordinates) Path() string {
	var b strings.Builder
	b.WriteString(strings.ReplaceAll(c.GroupID(), ".", "/"))
	b.WriteString("/")
	b.WriteString(c.ArtifactID())
	b.WriteString("/")
	b.WriteString(c.BaseVersion())
	b.WriteString("/")
	b.WriteString(c.ArtifactID())
	b.WriteString("-")
	b.WriteString(c.Version())
	if classifier := c.Classifier(); classifier != "" {
		b.WriteString("-")
		b.WriteString(classifier)
	}
	b.WriteString(".")
	b.WriteString(c.Extension())
	return b.String()
}

func (c *MavenCoordinates) Fields() []Field { return c.values().fields() }

// String returns the GAV form accepted by MavenOf.
func (c *MavenCoordinates) String() string {
	parts := []string{c.GroupID(), c.ArtifactID(), c.Version()}
	if classifier := c.Classifier(); classifier != "" {
		parts = append(parts, classifier)
	}
	parts = append(parts, c.Extension())
	return strings.Join(parts, ":")
}

var mavenFieldNames = []string{mavenGroupID, mavenArtifactID, mavenVersion, mavenClassifier, mavenExtension}

// values lets the zero value be used through its setters.
func (c *MavenCoordinates) values() *fieldSet {
	if c.fields.values == nil {
		c.fields = defineFields(mavenFieldNames...)
	}
	return &c.fields
}
