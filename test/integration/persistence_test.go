//go:build integration

package integration

import (
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/eliteGoblin/focusd/kioskd/internal/domain"
	"github.com/eliteGoblin/focusd/kioskd/internal/infra"
)

var _ = Describe("Encrypted store", func() {
	var dataDir string

	BeforeEach(func() {
		dataDir = GinkgoT().TempDir()
	})

	It("keeps the first-activation flag across reopen with the same key", func() {
		provider := infra.NewFileKeyProvider(dataDir)
		key, err := infra.EnsureKey(provider)
		Expect(err).NotTo(HaveOccurred())

		store, err := infra.NewEncryptedStore(dataDir, key)
		Expect(err).NotTo(HaveOccurred())
		Expect(store.FirstActivationDone()).To(BeFalse())
		Expect(store.MarkFirstActivationDone()).To(Succeed())
		Expect(store.Close()).To(Succeed())

		key, err = infra.EnsureKey(provider)
		Expect(err).NotTo(HaveOccurred())
		store, err = infra.NewEncryptedStore(dataDir, key)
		Expect(err).NotTo(HaveOccurred())
		defer store.Close()

		Expect(store.FirstActivationDone()).To(BeTrue())
	})

	It("refuses to open with the wrong key", func() {
		key, err := infra.GenerateKey()
		Expect(err).NotTo(HaveOccurred())
		store, err := infra.NewEncryptedStore(dataDir, key)
		Expect(err).NotTo(HaveOccurred())
		Expect(store.SetSecret("probe", "x")).To(Succeed())
		Expect(store.Close()).To(Succeed())

		other, err := infra.GenerateKey()
		Expect(err).NotTo(HaveOccurred())
		_, err = infra.NewEncryptedStore(dataDir, other)
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Owner registry", func() {
	It("admits a single owner per data dir", func() {
		dataDir := GinkgoT().TempDir()
		pm := infra.NewProcessManager()
		first := infra.NewFileOwnerRegistry(dataDir, pm)
		second := infra.NewFileOwnerRegistry(dataDir, pm)

		Expect(first.Acquire(domain.Owner{PID: os.Getpid(), SessionID: "a"})).To(Succeed())
		Expect(second.Acquire(domain.Owner{PID: os.Getpid(), SessionID: "b"})).To(MatchError(domain.ErrOwnerActive))

		Expect(first.Release()).To(Succeed())
		Expect(second.Acquire(domain.Owner{PID: os.Getpid(), SessionID: "b"})).To(Succeed())
		Expect(second.Release()).To(Succeed())
	})
})
