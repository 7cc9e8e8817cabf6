package platform

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spatialpipe/spatialpipe/internal/models"
)

// Family is the host OS family the pipeline branches on.
type Family string

const (
	FamilyDarwin Family = "mac-like"
	FamilyLinux  Family = "linux-like"
)

// Detect reports the host OS family. Ambiguous identifiers fall back to
// linux-like.
func Detect() Family {
	return detect(runtime.GOOS)
}

func detect(osID string) Family {
	s := strings.ToLower(osID)
	if strings.Contains(s, "darwin") || strings.Contains(s, "mac") {
		return FamilyDarwin
	}
	return FamilyLinux
}

// Strategy selects the transport tool, image builder, and container runtime
// for one host family. It is resolved once at pipeline start so platform
// branching never recurs at call sites.
//
// mac-like hosts fetch with curl, build archive-format images with docker
// (build + save), and run stages with docker run. linux-like hosts fetch
// with wget, build runtime-format images with apptainer, and run stages
// with apptainer exec.
type Strategy interface {
	Family() Family

	// NativeExt is the image format extension this host builds and runs.
	NativeExt() string
	// AltExt is the other platform's format extension. A cached alternate
	// artifact may be convertible to the native format.
	AltExt() string

	// FetchArgs is the argv that downloads url into the working directory,
	// preserving the server-reported filename.
	FetchArgs(url string) []string

	// BuildSteps is the command sequence that builds desc and leaves the
	// native-format artifact at artifactPath.
	BuildSteps(desc models.ContainerDescriptor, artifactPath string) [][]string

	// ConvertArgs is the argv that converts an alternate-format artifact at
	// src into a native-format artifact at dst. Nil when the host format
	// cannot be produced from the alternate one.
	ConvertArgs(src, dst string) []string

	// LoadSteps is the command sequence, possibly empty, that makes an
	// already cached native artifact runnable on this host.
	LoadSteps(name, artifactPath string) [][]string

	// ImageRef is the reference stages use to run inside the image: a tag
	// on mac-like hosts, the artifact path on linux-like hosts.
	ImageRef(name, artifactPath string) string

	// ExecArgs wraps argv for execution inside imageRef with the given
	// binds and working directory.
	ExecArgs(imageRef, workDir string, binds []models.Bind, argv []string) []string
}

// ForFamily returns the strategy for the given family.
func ForFamily(f Family) Strategy {
	if f == FamilyDarwin {
		return darwinStrategy{}
	}
	return linuxStrategy{}
}

// darwinStrategy drives curl and docker. The authoritative cached artifact
// is a docker-save archive, which is also what linux hosts convert into
// runtime images.
type darwinStrategy struct{}

func (darwinStrategy) Family() Family    { return FamilyDarwin }
func (darwinStrategy) NativeExt() string { return ".tar" }
func (darwinStrategy) AltExt() string    { return ".sif" }

func (darwinStrategy) FetchArgs(url string) []string {
	return []string{"curl", "-fL", "--remote-name", "--remote-header-name", url}
}

func (darwinStrategy) BuildSteps(desc models.ContainerDescriptor, artifactPath string) [][]string {
	return [][]string{
		{"docker", "build", "-t", desc.Name, desc.RecipeDir},
		{"docker", "save", "-o", artifactPath, desc.Name},
	}
}

// ConvertArgs returns nil: there is no runtime-to-archive conversion, so a
// cached .sif cannot serve a mac-like host.
func (darwinStrategy) ConvertArgs(src, dst string) []string { return nil }

func (darwinStrategy) LoadSteps(name, artifactPath string) [][]string {
	return [][]string{{"docker", "load", "-i", artifactPath}}
}

func (darwinStrategy) ImageRef(name, artifactPath string) string { return name }

func (darwinStrategy) ExecArgs(imageRef, workDir string, binds []models.Bind, argv []string) []string {
	args := []string{"docker", "run", "--rm"}
	if workDir != "" {
		args = append(args, "-w", workDir)
	}
	for _, b := range binds {
		args = append(args, "-v", fmt.Sprintf("%s:%s", b.Host, b.Container))
	}
	args = append(args, imageRef)
	return append(args, argv...)
}

// linuxStrategy drives wget and apptainer. The cached artifact is a .sif
// runtime image consumed directly, with on-demand conversion from docker
// archives produced elsewhere.
type linuxStrategy struct{}

func (linuxStrategy) Family() Family    { return FamilyLinux }
func (linuxStrategy) NativeExt() string { return ".sif" }
func (linuxStrategy) AltExt() string    { return ".tar" }

func (linuxStrategy) FetchArgs(url string) []string {
	return []string{"wget", "-nv", url}
}

func (linuxStrategy) BuildSteps(desc models.ContainerDescriptor, artifactPath string) [][]string {
	def := filepath.Join(desc.RecipeDir, desc.Name+".def")
	return [][]string{{"apptainer", "build", artifactPath, def}}
}

func (linuxStrategy) ConvertArgs(src, dst string) []string {
	return []string{"apptainer", "build", dst, "docker-archive://" + src}
}

func (linuxStrategy) LoadSteps(name, artifactPath string) [][]string { return nil }

func (linuxStrategy) ImageRef(name, artifactPath string) string { return artifactPath }

func (linuxStrategy) ExecArgs(imageRef, workDir string, binds []models.Bind, argv []string) []string {
	args := []string{"apptainer", "exec"}
	if workDir != "" {
		args = append(args, "--pwd", workDir)
	}
	for _, b := range binds {
		args = append(args, "--bind", fmt.Sprintf("%s:%s", b.Host, b.Container))
	}
	args = append(args, imageRef)
	return append(args, argv...)
}
