package memorycmder

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestMemoryCmd(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Memory Command Suite")
}
