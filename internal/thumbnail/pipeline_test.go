package thumbnail

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/local/docsplit/internal/pdffixture"
)

type fakeRenderer struct {
	pages int
	fail  map[int]bool
	panic map[int]bool
	block map[int]bool
	delay time.Duration
	calls atomic.Int64
}

func (f *fakeRenderer) PageCount() int { return f.pages }

func (f *fakeRenderer) RenderPage(ctx context.Context, index int, scale float64) (image.Image, error) {
	f.calls.Add(1)
	if f.panic[index] {
		panic("corrupt page")
	}
	if f.block[index] {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.fail[index] {
		return nil, errors.New("bad page")
	}
	return pdffixture.Solid(int(612*scale), int(792*scale), color.White), nil
}

func collect(t *testing.T, r *Run) (pages []int, complete []Event) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-r.Events():
			if !ok {
				sort.Ints(pages)
				return pages, complete
			}
			if ev.Generation != r.Generation() {
				t.Errorf("event generation %d on run %d", ev.Generation, r.Generation())
			}
			switch ev.Kind {
			case EventThumbnail:
				if len(complete) > 0 {
					t.Errorf("thumbnail for page %d after completion", ev.Thumbnail.PageIndex)
				}
				pages = append(pages, ev.Thumbnail.PageIndex)
			case EventComplete:
				complete = append(complete, ev)
			}
		case <-timeout:
			t.Fatal("run did not finish")
		}
	}
}

func TestRunEmitsEveryPageThenOneCompletion(t *testing.T) {
	src := &fakeRenderer{pages: 7}
	r := Start(context.Background(), src, 1, Options{Workers: 3, Scale: 0.5})
	pages, complete := collect(t, r)

	if diff := cmp.Diff([]int{0, 1, 2, 3, 4, 5, 6}, pages); diff != "" {
		t.Fatalf("pages (-want +got):\n%s", diff)
	}
	if len(complete) != 1 || complete[0].Rendered != 7 || complete[0].Failed != 0 {
		t.Fatalf("completion events = %+v", complete)
	}
}

func TestRunSkipsFailedPages(t *testing.T) {
	src := &fakeRenderer{pages: 5, fail: map[int]bool{1: true}, panic: map[int]bool{3: true}}
	r := Start(context.Background(), src, 2, Options{Workers: 2})
	pages, complete := collect(t, r)

	if diff := cmp.Diff([]int{0, 2, 4}, pages); diff != "" {
		t.Fatalf("pages (-want +got):\n%s", diff)
	}
	if len(complete) != 1 || complete[0].Rendered != 3 || complete[0].Failed != 2 {
		t.Fatalf("completion = %+v", complete)
	}
}

func TestRunPageTimeout(t *testing.T) {
	src := &fakeRenderer{pages: 3, block: map[int]bool{0: true}}
	r := Start(context.Background(), src, 3, Options{Workers: 1, PageTimeout: 50 * time.Millisecond})
	pages, complete := collect(t, r)

	if diff := cmp.Diff([]int{1, 2}, pages); diff != "" {
		t.Fatalf("pages (-want +got):\n%s", diff)
	}
	if len(complete) != 1 || complete[0].Failed != 1 {
		t.Fatalf("completion = %+v", complete)
	}
}

func TestThumbnailFitsBox(t *testing.T) {
	src := &fakeRenderer{pages: 1}
	r := Start(context.Background(), src, 4, Options{Scale: 1, MaxWidth: 200, MaxHeight: 150})
	ev := <-r.Events()
	if ev.Kind != EventThumbnail {
		t.Fatalf("first event = %v", ev.Kind)
	}
	th := ev.Thumbnail
	if th.Width > 200 || th.Height != 150 {
		t.Fatalf("thumbnail %dx%d outside 200x150 box", th.Width, th.Height)
	}
	if len(th.JPEG) < 2 || th.JPEG[0] != 0xFF || th.JPEG[1] != 0xD8 {
		t.Fatal("thumbnail is not a JPEG")
	}
	if th.GeneratedAt != 1 {
		t.Fatalf("sequence = %d", th.GeneratedAt)
	}
	collect(t, r)
}

func TestGrayscaleThumbnails(t *testing.T) {
	decode := func(opts Options) image.Image {
		t.Helper()
		r := Start(context.Background(), &fakeRenderer{pages: 1}, 1, opts)
		ev := <-r.Events()
		if ev.Kind != EventThumbnail {
			t.Fatalf("first event = %v", ev.Kind)
		}
		collect(t, r)
		img, err := jpeg.Decode(bytes.NewReader(ev.Thumbnail.JPEG))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		return img
	}

	if img := decode(Options{Scale: 0.25, Grayscale: true}); img.ColorModel() != color.GrayModel {
		t.Errorf("grayscale thumbnail decodes as %T", img)
	}
	if img := decode(Options{Scale: 0.25}); img.ColorModel() == color.GrayModel {
		t.Error("colour thumbnail was encoded as grayscale")
	}
}

func TestCancelSuppressesCompletion(t *testing.T) {
	src := &fakeRenderer{pages: 50, delay: 20 * time.Millisecond}
	r := Start(context.Background(), src, 5, Options{Workers: 2})

	<-r.Events()
	r.Cancel()
	pages, complete := collect(t, r)

	if len(complete) != 0 {
		t.Fatalf("cancelled run emitted completion %+v", complete)
	}
	if len(pages)+1 >= 50 {
		t.Fatalf("cancelled run still rendered %d pages", len(pages)+1)
	}
	if n := src.calls.Load(); n >= 50 {
		t.Fatalf("renderer called %d times after cancellation", n)
	}
}

func TestEmptyDocumentCompletes(t *testing.T) {
	r := Start(context.Background(), &fakeRenderer{}, 6, Options{})
	pages, complete := collect(t, r)
	if len(pages) != 0 || len(complete) != 1 {
		t.Fatalf("pages=%v complete=%v", pages, complete)
	}
}
