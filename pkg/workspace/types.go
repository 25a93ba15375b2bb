package workspace

// ToolInfo identifies a detected build tool or test framework and the command
// used to invoke it.
type ToolInfo struct {
	Name    string
	Command string
	Args    []string
	// Marker is the file whose presence identified the tool.
	Marker string
}

// RepositoryContext is an immutable snapshot of the working tree taken once
// per step. It is never mutated after creation; a new step re-derives it.
type RepositoryContext struct {
	Root     string
	Language string
	// Files are repository-relative paths in discovery order. The order is
	// not semantically significant.
	Files         []string
	BuildTool     *ToolInfo
	TestFramework *ToolInfo
	Metadata      map[string]string
}

// HasBuildTool reports whether a build tool was detected.
func (rc *RepositoryContext) HasBuildTool() bool {
	return rc.BuildTool != nil
}

// HasTestFramework reports whether a test framework was detected.
func (rc *RepositoryContext) HasTestFramework() bool {
	return rc.TestFramework != nil
}
