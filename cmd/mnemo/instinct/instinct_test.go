package instinctcmder

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("NewInstinctCmd", func() {
	It("creates a command with the correct use name", func() {
		cmd := NewInstinctCmd()
		Expect(cmd.Use).To(Equal("instinct"))
	})

	It("registers the list, show, delete, and extract subcommands", func() {
		cmd := NewInstinctCmd()
		names := []string{}
		for _, c := range cmd.Commands() {
			names = append(names, c.Name())
		}
		Expect(names).To(ContainElements("list", "show", "delete", "extract"))
	})

	It("requires exactly one key argument for show and delete", func() {
		cmd := NewInstinctCmd()
		for _, c := range cmd.Commands() {
			if c.Name() == "show" || c.Name() == "delete" {
				Expect(c.Args(c, []string{})).To(HaveOccurred())
				Expect(c.Args(c, []string{"agent.instinct.error.not_found"})).NotTo(HaveOccurred())
			}
		}
	})

	It("registers the min-confidence and store flags on extract", func() {
		cmd := NewInstinctCmd()
		for _, c := range cmd.Commands() {
			if c.Name() != "extract" {
				continue
			}
			Expect(c.Flags().Lookup("min-confidence")).NotTo(BeNil())
			Expect(c.Flags().Lookup("store")).NotTo(BeNil())
			Expect(c.Flags().Lookup("transcript")).NotTo(BeNil())
		}
	})
})
