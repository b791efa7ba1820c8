package instinctcmder

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestInstinctCmd(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Instinct Command Suite")
}
