package models

// PathKind describes how a declared input or output is checked for presence.
type PathKind string

const (
	PathFile        PathKind = "file"          // regular file exists
	PathDir         PathKind = "dir"           // directory exists
	PathDirNonEmpty PathKind = "dir-non-empty" // directory exists and has entries
	PathGlob        PathKind = "glob"          // pattern matches at least one path
)

// PathSpec is one declared input or output of a stage. Optional outputs may
// legitimately be absent after a successful run; optional inputs do not gate
// execution.
type PathSpec struct {
	Path     string
	Kind     PathKind
	Optional bool
}

// Bind mounts a host path into the container a stage runs in.
type Bind struct {
	Host      string
	Container string
}

// DatasetDescriptor identifies one remote data source: where to fetch it
// from, how to rename the result, and where it lands. Multi-URL descriptors
// fan out with no ordering dependency between the transfers.
type DatasetDescriptor struct {
	Name         string
	URLs         []string
	RenamePrefix string
	DestDir      string
}

// ContainerDescriptor identifies a reproducible execution environment. The
// recipe directory holds both the Dockerfile and the Apptainer definition
// file named <name>.def; which one is used depends on the host platform.
type ContainerDescriptor struct {
	Name      string
	RecipeDir string
}

// StageDescriptor is one unit of declared-input/declared-output work. An
// empty Container means the command runs directly on the host. Outputs must
// be fully determined by the inputs plus fixed parameters; the skip-if-exists
// check relies on that.
type StageDescriptor struct {
	Name      string
	Container string
	Inputs    []PathSpec
	Outputs   []PathSpec
	Command   []string
	Binds     []Bind
	WorkDir   string
}
