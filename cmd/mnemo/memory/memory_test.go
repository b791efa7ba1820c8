package memorycmder

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("NewMemoryCmd", func() {
	It("creates a command with the correct use name", func() {
		cmd := NewMemoryCmd()
		Expect(cmd.Use).To(Equal("memory"))
	})

	It("registers the summary, search, store, and aggregate subcommands", func() {
		cmd := NewMemoryCmd()
		names := []string{}
		for _, c := range cmd.Commands() {
			names = append(names, c.Name())
		}
		Expect(names).To(ContainElements("summary", "search", "store", "aggregate"))
	})

	It("registers an out-dir flag on the aggregate subcommand", func() {
		cmd := NewMemoryCmd()
		for _, c := range cmd.Commands() {
			if c.Name() == "aggregate" {
				Expect(c.Flags().Lookup("out-dir")).NotTo(BeNil())
				Expect(c.Flags().Lookup("mnemo-dir")).NotTo(BeNil())
			}
		}
	})

	It("rejects a store call with the wrong number of arguments", func() {
		cmd := NewMemoryCmd()
		for _, c := range cmd.Commands() {
			if c.Name() == "store" {
				Expect(c.Args(c, []string{"only.one"})).To(HaveOccurred())
				Expect(c.Args(c, []string{"user.city", "Lisbon"})).NotTo(HaveOccurred())
			}
		}
	})

	It("registers shared embedding flags on the search subcommand", func() {
		cmd := NewMemoryCmd()
		for _, c := range cmd.Commands() {
			if c.Name() != "search" {
				continue
			}
			Expect(c.Flags().Lookup("prefix")).NotTo(BeNil())
			Expect(c.Flags().Lookup("text")).NotTo(BeNil())
			Expect(c.Flags().Lookup("limit")).NotTo(BeNil())
			Expect(c.Flags().Lookup("embed-model")).NotTo(BeNil())
		}
	})
})
