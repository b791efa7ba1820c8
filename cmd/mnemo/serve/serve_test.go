package servecmder

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("NewServeCmd", func() {
	It("creates a command with the correct use name", func() {
		cmd := NewServeCmd()
		Expect(cmd.Use).To(Equal("serve"))
		Expect(cmd.Args(cmd, []string{})).To(Succeed())
		Expect(cmd.Args(cmd, []string{"extra"})).To(HaveOccurred())
	})

	It("has the expected flags with their documented defaults", func() {
		cmd := NewServeCmd()
		Expect(cmd.Flags().Lookup("listen").DefValue).To(Equal(":8091"))
		Expect(cmd.Flags().Lookup("mcp-path").DefValue).To(Equal("/mcp"))
		Expect(cmd.Flags().Lookup("mnemo-dir")).NotTo(BeNil())
		Expect(cmd.Flags().Lookup("dimensions")).NotTo(BeNil())
		Expect(cmd.Flags().Lookup("embed-provider")).NotTo(BeNil())
		Expect(cmd.Flags().Lookup("embed-base-url")).NotTo(BeNil())
		Expect(cmd.Flags().Lookup("embed-model")).NotTo(BeNil())
	})
})
