package mnemocmder

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("NewMnemoCmd", func() {
	It("creates a command with the correct use name", func() {
		cmd := NewMnemoCmd()
		Expect(cmd.Use).To(Equal("mnemo"))
	})

	It("registers a persistent debug flag", func() {
		cmd := NewMnemoCmd()
		flag := cmd.PersistentFlags().Lookup("debug")
		Expect(flag).NotTo(BeNil())
		Expect(flag.Shorthand).To(Equal("d"))
	})

	It("registers the pipeline, memory, instinct, config, serve, and version subcommands", func() {
		cmd := NewMnemoCmd()
		names := []string{}
		for _, c := range cmd.Commands() {
			names = append(names, c.Name())
		}
		Expect(names).To(ContainElements("pipeline", "memory", "instinct", "config", "serve", "version"))
	})

	It("registers a persistent config-dir flag", func() {
		cmd := NewMnemoCmd()
		flag := cmd.PersistentFlags().Lookup("config-dir")
		Expect(flag).NotTo(BeNil())
	})
})
