//go:build integration

package integration

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/kioskd/internal/daemon"
	"github.com/eliteGoblin/focusd/kioskd/internal/domain"
	"github.com/eliteGoblin/focusd/kioskd/internal/infra"
	"github.com/eliteGoblin/focusd/kioskd/internal/policy"
	"github.com/eliteGoblin/focusd/kioskd/internal/usecase"
)

var _ = Describe("Admin gesture", func() {
	var (
		h      *harness
		store  *infra.EncryptedStore
		kiosk  *daemon.Kiosk
		cancel context.CancelFunc
		done   chan error
	)

	BeforeEach(func() {
		h = newHarness(policy.NewAllowList("kiosk"))

		dataDir := GinkgoT().TempDir()
		key, err := infra.GenerateKey()
		Expect(err).NotTo(HaveOccurred())
		store, err = infra.NewEncryptedStore(dataDir, key)
		Expect(err).NotTo(HaveOccurred())

		auth := usecase.NewAdminAuthenticator(store, "", 5, zap.NewNop())
		Expect(auth.SetCredential("2468")).To(Succeed())

		gesture := usecase.NewGestureDetector(usecase.DefaultGestureKey, 2*time.Second, 5)
		kiosk = daemon.NewKiosk(h.machine, h.watchdog, gesture, auth, h.device, h.device, zap.NewNop())
		kiosk.AllowDuringPrompt(h.sanctions, "zenity")

		var runCtx context.Context
		runCtx, cancel = context.WithCancel(context.Background())
		done = make(chan error, 1)
		go func() { done <- kiosk.Run(runCtx) }()
		Eventually(kiosk.State).Should(Equal(domain.StateEnforced))
	})

	AfterEach(func() {
		cancel()
		Eventually(done).Should(Receive(BeNil()))
		h.watchdog.Close()
		Expect(store.Close()).To(Succeed())
	})

	pressGesture := func() {
		base := h.device.Clock.Now()
		for _, ms := range []int{0, 400, 800, 1200, 1600} {
			kiosk.Press(usecase.DefaultGestureKey, base.Add(time.Duration(ms)*time.Millisecond))
		}
	}

	Context("with the correct PIN", func() {
		It("unlocks and stops enforcement", func() {
			h.device.SetPIN("2468")

			pressGesture()

			Eventually(kiosk.State).Should(Equal(domain.StateAdminOverride))
			Expect(h.device.Prompts()).To(Equal(1))
			Expect(h.watchdog.Running()).To(BeFalse())
			Expect(h.device.Held()).To(BeFalse())
			Expect(h.device.Homes()).To(Equal(1))

			Expect(h.play("other", "other2")).To(HaveEach(domain.TickSkipped))
			Expect(h.recoveries()).To(BeZero())
		})
	})

	Context("when the prompt window takes the foreground", func() {
		It("is not recovered while the prompt is open", func() {
			var during []domain.TickOutcome
			h.device.OnPrompt(func() {
				during = h.play("zenity")
			})
			h.device.SetPIN("2468")

			pressGesture()

			Eventually(kiosk.State).Should(Equal(domain.StateAdminOverride))
			Expect(during).To(Equal([]domain.TickOutcome{domain.TickAllowed}))
			Expect(h.recoveries()).To(BeZero())
		})

		It("is recovered once a wrong PIN closes the prompt", func() {
			h.device.OnPrompt(func() {
				h.play("zenity")
			})
			h.device.SetPIN("0000")

			pressGesture()

			Eventually(h.device.Messages).Should(ContainElement(daemon.MsgCredentialRejected))
			Expect(h.recoveries()).To(BeZero())
			Expect(h.watchdog.Tick(ctx())).To(Equal(domain.TickRecovered))
		})
	})

	Context("with a wrong PIN", func() {
		It("stays enforced and tells the operator", func() {
			h.device.SetPIN("0000")

			pressGesture()

			Eventually(h.device.Messages).Should(ContainElement(daemon.MsgCredentialRejected))
			Expect(kiosk.State()).To(Equal(domain.StateEnforced))
			Expect(h.play("other")).To(Equal([]domain.TickOutcome{domain.TickRecovered}))
		})
	})

	Context("with four presses and a pause", func() {
		It("does not prompt", func() {
			base := h.device.Clock.Now()
			for _, ms := range []int{0, 400, 800, 1200, 3500} {
				kiosk.Press(usecase.DefaultGestureKey, base.Add(time.Duration(ms)*time.Millisecond))
			}

			Consistently(h.device.Prompts, 100*time.Millisecond).Should(BeZero())
		})
	})

	Context("when the content surface signals", func() {
		It("cannot unlock", func() {
			Expect(kiosk.Signal(context.Background(), domain.LockEventAdminUnlock)).NotTo(Succeed())
			Expect(kiosk.State()).To(Equal(domain.StateEnforced))
		})
	})
})
