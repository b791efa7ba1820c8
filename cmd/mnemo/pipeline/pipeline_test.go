package pipelinecmder

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func findSubcommand(cmd *cobra.Command, name string) *cobra.Command {
	for _, c := range cmd.Commands() {
		if c.Name() == name {
			return c
		}
	}
	return nil
}

var _ = Describe("NewPipelineCmd", func() {
	It("creates a command with the correct use name", func() {
		cmd := NewPipelineCmd()
		Expect(cmd.Use).To(Equal("pipeline"))
	})

	It("registers a run subcommand requiring exactly one argument", func() {
		cmd := NewPipelineCmd()
		var run *cobra.Command
		for _, c := range cmd.Commands() {
			if c.Name() == "run" {
				run = c
			}
		}
		Expect(run).NotTo(BeNil())
		Expect(run.Args(run, []string{})).To(HaveOccurred())
		Expect(run.Args(run, []string{"./sessions"})).NotTo(HaveOccurred())
	})

	It("has the expected flags on the run subcommand", func() {
		cmd := NewPipelineCmd()
		for _, c := range cmd.Commands() {
			if c.Name() != "run" {
				continue
			}
			Expect(c.Flags().Lookup("max-sessions")).NotTo(BeNil())
			Expect(c.Flags().Lookup("min-free-mb")).NotTo(BeNil())
			Expect(c.Flags().Lookup("stage-timeout")).NotTo(BeNil())
			Expect(c.Flags().Lookup("dedup")).NotTo(BeNil())
			Expect(c.Flags().Lookup("embed-model")).NotTo(BeNil())
			Expect(c.Flags().Lookup("lock-stale-ttl")).NotTo(BeNil())
		}
	})
})

var _ = Describe("run subcommand config fallback", func() {
	var (
		tmpDir  string
		origDir string
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "mnemo-pipeline-test-*")
		Expect(err).NotTo(HaveOccurred())

		origDir, err = os.Getwd()
		Expect(err).NotTo(HaveOccurred())

		err = os.MkdirAll(filepath.Join(tmpDir, ".mnemo"), 0o755)
		Expect(err).NotTo(HaveOccurred())

		err = os.Chdir(tmpDir)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		err := os.Chdir(origDir)
		Expect(err).NotTo(HaveOccurred())
		os.RemoveAll(tmpDir)
	})

	It("fills unset flags from config.toml", func() {
		configTOML := `version = 0

[guards]
max_sessions_per_run = 42
min_free_mb = 777

[dedup]
enabled = false
similarity_threshold = 0.5

[embedding]
provider = "ollama"
model = "custom-embed-model"
`
		err := os.WriteFile(filepath.Join(tmpDir, ".mnemo", "config.toml"), []byte(configTOML), 0o644)
		Expect(err).NotTo(HaveOccurred())

		cmd := NewPipelineCmd()
		run := findSubcommand(cmd, "run")
		Expect(run).NotTo(BeNil())

		Expect(run.PreRunE(run, []string{})).NotTo(HaveOccurred())

		Expect(run.Flags().Lookup("max-sessions").Value.String()).To(Equal("42"))
		Expect(run.Flags().Lookup("min-free-mb").Value.String()).To(Equal("777"))
		Expect(run.Flags().Lookup("dedup").Value.String()).To(Equal("false"))
		Expect(run.Flags().Lookup("embed-model").Value.String()).To(Equal("custom-embed-model"))
	})

	It("leaves explicitly-set flags untouched even with a conflicting config.toml", func() {
		configTOML := `version = 0

[guards]
max_sessions_per_run = 42
`
		err := os.WriteFile(filepath.Join(tmpDir, ".mnemo", "config.toml"), []byte(configTOML), 0o644)
		Expect(err).NotTo(HaveOccurred())

		cmd := NewPipelineCmd()
		run := findSubcommand(cmd, "run")
		Expect(run).NotTo(BeNil())

		err = run.Flags().Set("max-sessions", "9")
		Expect(err).NotTo(HaveOccurred())

		Expect(run.PreRunE(run, []string{})).NotTo(HaveOccurred())

		Expect(run.Flags().Lookup("max-sessions").Value.String()).To(Equal("9"))
	})

	It("succeeds with no config.toml present, falling back to compiled-in defaults", func() {
		cmd := NewPipelineCmd()
		run := findSubcommand(cmd, "run")
		Expect(run).NotTo(BeNil())

		Expect(run.PreRunE(run, []string{})).NotTo(HaveOccurred())
	})
})
