package modem

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	. "github.com/onsi/gomega"

	"github.com/moffa90/go-qdl/archive"
	"github.com/moffa90/go-qdl/edlsim"
	"github.com/moffa90/go-qdl/errkind"
	"github.com/moffa90/go-qdl/firehose"
	"github.com/moffa90/go-qdl/sahara"
	"github.com/moffa90/go-qdl/transport/transporttest"
)

func padded(b []byte, n int) []byte {
	out := make([]byte, n)
	copy(out, b)
	return out
}

func TestFlashFirehoseReusesSaharaPort(t *testing.T) {
	g := NewWithT(t)

	arc := firmware()
	dev := edlsim.New(len(arc["firehose-prog.mbn"]))
	p := &ports{open: dev.Open}
	sw := &countingSwitcher{succeedAfter: 1}

	var progress []firehose.Progress
	f := New(
		WithMethods(MethodFirehose),
		WithSwitcher(sw),
		WithSaharaPort(p.Open),
		WithFirehoseOptions(firehose.WithProgressCallback(func(pr firehose.Progress) {
			progress = append(progress, pr)
		})),
	)

	res, err := f.Flash(context.Background(), arc)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(res.Method).To(Equal(MethodFirehose))
	g.Expect(res.Manifest).To(Equal("firehose-rawprogram.xml"))
	g.Expect(res.Session).NotTo(BeEmpty())
	g.Expect(res.SoftErrors).To(BeZero())

	g.Expect(sw.calls).To(Equal(1))
	g.Expect(p.count()).To(Equal(1))
	g.Expect(p.allClosed()).To(BeTrue())

	g.Expect(dev.Programmer()).To(Equal(arc["firehose-prog.mbn"]))
	g.Expect(dev.Stage()).To(Equal(edlsim.StageReset))
	g.Expect(dev.Commands()).To(Equal([]string{"configure", "program", "erase", "program", "power"}))

	parts := dev.Partitions()
	g.Expect(parts).To(HaveLen(2))
	g.Expect(parts[0].Filename).To(Equal("boot.img"))
	g.Expect(parts[0].Data).To(Equal(padded(arc["boot.img"], 8192)))
	g.Expect(parts[1].Filename).To(Equal("sys.img"))
	g.Expect(parts[1].StartSector).To(Equal("128"))
	g.Expect(parts[1].Data).To(Equal(padded([]byte("system"), 512)))

	g.Expect(progress).NotTo(BeEmpty())
	g.Expect(progress[len(progress)-1].Percentage).To(Equal(100.0))
}

func TestFlashFirehoseSeparatePorts(t *testing.T) {
	g := NewWithT(t)

	node := filepath.Join(t.TempDir(), "wwan0firehose0")
	g.Expect(os.WriteFile(node, nil, 0o600)).To(Succeed())

	arc := firmware()
	dev := edlsim.New(len(arc["firehose-prog.mbn"]))
	sp := &ports{open: dev.Open}
	fp := &ports{open: dev.Open}

	f := New(
		WithMethods(MethodFirehose),
		WithSaharaPort(sp.Open),
		WithFirehosePort(node, fp.Open),
	)

	_, err := f.Flash(context.Background(), arc)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(sp.count()).To(Equal(1))
	g.Expect(fp.count()).To(Equal(1))
	g.Expect(sp.allClosed()).To(BeTrue())
	g.Expect(fp.allClosed()).To(BeTrue())
	g.Expect(dev.Partitions()).To(HaveLen(2))
}

func TestFlashFirehoseHostLoadedProgrammer(t *testing.T) {
	g := NewWithT(t)

	arc := firmware()
	dev := edlsim.New(len(arc["firehose-prog.mbn"]))

	// the host driver completes Sahara before the firehose port shows up
	boot := dev.Open()
	g.Expect(sahara.New(boot).Run(context.Background(), arc["firehose-prog.mbn"])).To(Succeed())
	g.Expect(boot.Close()).To(Succeed())
	g.Expect(dev.Stage()).To(Equal(edlsim.StageFirehose))

	fp := &ports{open: dev.Open}
	_, err := New(WithMethods(MethodFirehose), WithFirehosePort("", fp.Open)).Flash(context.Background(), arc)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(fp.count()).To(Equal(1))
	g.Expect(fp.allClosed()).To(BeTrue())
	g.Expect(dev.Partitions()).To(HaveLen(2))
}

func TestFlashValidatesBeforeIO(t *testing.T) {
	tests := []struct {
		name   string
		modify func(archive.Map)
		kind   errkind.Kind
		substr string
	}{
		{
			name:   "no manifest",
			modify: func(a archive.Map) { delete(a, "firehose-rawprogram.xml") },
			kind:   errkind.NotFound,
			substr: "rawprogram.xml not found",
		},
		{
			name:   "file missing",
			modify: func(a archive.Map) { delete(a, "sys.img") },
			kind:   errkind.NotFound,
			substr: "sys.img",
		},
		{
			name:   "file larger than declared",
			modify: func(a archive.Map) { a["sys.img"] = make([]byte, 513) },
			kind:   errkind.Validation,
			substr: "invalid firehose rawprogram manifest",
		},
		{
			name:   "no programmer",
			modify: func(a archive.Map) { delete(a, "firehose-prog.mbn") },
			kind:   errkind.NotFound,
			substr: "firehose-prog.mbn",
		},
		{
			name:   "truncated manifest",
			modify: func(a archive.Map) { a["firehose-rawprogram.xml"] = []byte(`<data><program `) },
			kind:   errkind.Validation,
			substr: "truncated",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewWithT(t)

			arc := firmware()
			tt.modify(arc)
			p := &ports{open: transporttest.New}
			sw := &countingSwitcher{succeedAfter: 1}

			f := New(WithMethods(MethodFirehose), WithSwitcher(sw), WithSaharaPort(p.Open))
			res, err := f.Flash(context.Background(), arc)
			g.Expect(err).To(HaveOccurred())
			g.Expect(errkind.Of(err)).To(Equal(tt.kind))
			g.Expect(err.Error()).To(ContainSubstring(tt.substr))
			g.Expect(res).NotTo(BeNil())
			g.Expect(sw.calls).To(BeZero())
			g.Expect(p.count()).To(BeZero())
		})
	}
}

func TestFlashSwitchRetries(t *testing.T) {
	g := NewWithT(t)

	arc := firmware()
	dev := edlsim.New(len(arc["firehose-prog.mbn"]))
	p := &ports{open: dev.Open}
	sw := &countingSwitcher{succeedAfter: 3, err: ErrNotSwitched}

	f := New(
		WithMethods(MethodFirehose),
		WithSwitcher(sw),
		WithSwitchRetry(5, 0),
		WithSaharaPort(p.Open),
	)
	_, err := f.Flash(context.Background(), arc)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(sw.calls).To(Equal(3))
}

func TestFlashSwitchExhausted(t *testing.T) {
	g := NewWithT(t)

	p := &ports{open: transporttest.New}
	sw := &countingSwitcher{succeedAfter: 100, err: ErrNotSwitched}

	f := New(
		WithMethods(MethodFirehose),
		WithSwitcher(sw),
		WithSwitchRetry(4, 0),
		WithSaharaPort(p.Open),
	)
	_, err := f.Flash(context.Background(), firmware())
	g.Expect(errors.Is(err, ErrNotSwitched)).To(BeTrue())
	g.Expect(err.Error()).To(ContainSubstring("after 4 attempts"))
	g.Expect(sw.calls).To(Equal(4))
	g.Expect(p.count()).To(BeZero())
}

func TestFlashSwitchCanceled(t *testing.T) {
	g := NewWithT(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	sw := SwitcherFunc(func(context.Context) error {
		calls++
		cancel()
		return ErrNotSwitched
	})

	p := &ports{open: transporttest.New}
	f := New(WithMethods(MethodFirehose), WithSwitcher(sw), WithSaharaPort(p.Open))
	_, err := f.Flash(ctx, firmware())
	g.Expect(errkind.Of(err)).To(Equal(errkind.Timeout))
	g.Expect(errors.Is(err, context.Canceled)).To(BeTrue())
	g.Expect(calls).To(Equal(1))
}

func TestFlashSaharaSilent(t *testing.T) {
	g := NewWithT(t)

	p := &ports{open: transporttest.New}
	f := New(WithMethods(MethodFirehose), WithSaharaPort(p.Open))

	_, err := f.Flash(context.Background(), firmware())
	g.Expect(err).To(HaveOccurred())
	g.Expect(errkind.Of(err)).To(Equal(errkind.Protocol))
	g.Expect(err.Error()).To(ContainSubstring("load programmer"))
	g.Expect(p.count()).To(Equal(1))
	g.Expect(p.allClosed()).To(BeTrue())
}

func TestFlashPortErrors(t *testing.T) {
	g := NewWithT(t)

	p := &ports{err: errkind.New(errkind.NotFound, "open usb", "no device")}
	_, err := New(WithMethods(MethodFirehose), WithSaharaPort(p.Open)).Flash(context.Background(), firmware())
	g.Expect(errkind.Of(err)).To(Equal(errkind.NotFound))
	g.Expect(err.Error()).To(ContainSubstring("open sahara port"))

	_, err = New(WithMethods(MethodFirehose)).Flash(context.Background(), firmware())
	g.Expect(errkind.Of(err)).To(Equal(errkind.Validation))

	missing := filepath.Join(t.TempDir(), "never")
	fp := &ports{open: transporttest.New}
	f := New(
		WithMethods(MethodFirehose),
		WithFirehosePort(missing, fp.Open),
		WithPortTimeout(20*time.Millisecond),
	)
	_, err = f.Flash(context.Background(), firmware())
	g.Expect(errkind.Of(err)).To(Equal(errkind.Timeout))
	g.Expect(err.Error()).To(ContainSubstring("find edl port"))
	g.Expect(fp.count()).To(BeZero())
}

func TestFlashFirehoseRejected(t *testing.T) {
	g := NewWithT(t)

	arc := firmware()
	dev := edlsim.New(len(arc["firehose-prog.mbn"]))
	dev.Reject = map[string]string{"erase": "range not erasable"}
	p := &ports{open: dev.Open}

	_, err := New(WithMethods(MethodFirehose), WithSaharaPort(p.Open)).Flash(context.Background(), arc)
	g.Expect(errkind.Of(err)).To(Equal(errkind.Rejected))
	g.Expect(err.Error()).To(ContainSubstring("range not erasable"))

	var rej *firehose.RejectedError
	g.Expect(errors.As(err, &rej)).To(BeTrue())
	g.Expect(rej.Action).To(Equal("erase"))

	g.Expect(dev.Partitions()).To(HaveLen(1))
	g.Expect(p.allClosed()).To(BeTrue())
}

func TestFlashUnsupportedMethod(t *testing.T) {
	g := NewWithT(t)

	res, err := New().Flash(context.Background(), firmware())
	g.Expect(res).To(BeNil())
	g.Expect(errkind.Of(err)).To(Equal(errkind.Validation))
	g.Expect(err.Error()).To(ContainSubstring("unsupported update method"))
}

func TestFlashDispatchOrder(t *testing.T) {
	g := NewWithT(t)

	arc := firmware()
	arc["mcfg.VF.001.mbn"] = []byte("vf")
	w := &pdcRecorder{}
	p := &ports{open: transporttest.New}

	f := New(
		WithMethods(MethodFirehose|MethodQMIPDC),
		WithPDCWriter(w),
		WithSaharaPort(p.Open),
	)
	res, err := f.Flash(context.Background(), arc)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(res.Method).To(Equal(MethodQMIPDC))
	g.Expect(w.names).To(Equal([]string{"mcfg.VF.001.mbn"}))
	g.Expect(p.count()).To(BeZero())
}

func TestFlashSessionInEveryLogLine(t *testing.T) {
	g := NewWithT(t)

	arc := firmware()
	dev := edlsim.New(len(arc["firehose-prog.mbn"]))
	p := &ports{open: dev.Open}
	log := &lineLogger{}

	res, err := New(
		WithMethods(MethodFirehose),
		WithLogger(log),
		WithSaharaPort(p.Open),
	).Flash(context.Background(), arc)
	g.Expect(err).NotTo(HaveOccurred())

	lines := log.all()
	g.Expect(lines).NotTo(BeEmpty())
	for _, l := range lines {
		g.Expect(l).To(ContainSubstring("session=" + res.Session))
	}

	var uploads int
	for _, l := range lines {
		if strings.Contains(l, "programmer uploaded") {
			uploads++
		}
	}
	g.Expect(uploads).To(Equal(1))
}
