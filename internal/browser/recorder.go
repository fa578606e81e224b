package browser

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/rs/zerolog"

	"github.com/sgurov/browserflow/internal/workflow"
)

// recorderJS is injected into the page to capture user interactions.
// Events accumulate in window.__recorder.events and are flushed by the
// polling loop. Clicks are taken on mousedown, typing is debounced per
// field, and only a small set of special keys is recorded.
const recorderJS = `
(() => {
	if (window.__recorder) return;
	window.__recorder = { events: [], lastInputValues: {} };
	const rec = window.__recorder;

	function getOwnText(el) {
		let text = '';
		for (const node of el.childNodes) {
			if (node.nodeType === Node.TEXT_NODE) text += node.textContent.trim();
		}
		return text.substring(0, 60);
	}

	function elementInfo(el) {
		if (!el || !el.tagName) return {};
		const info = { tag: el.tagName.toLowerCase() };
		const ownText = getOwnText(el);
		const fullText = (el.textContent || '').trim();
		if (ownText) info.text = ownText;
		else if (fullText.length <= 40) info.text = fullText;

		if (el.getAttribute('aria-label')) info.aria_label = el.getAttribute('aria-label');
		if (el.getAttribute('placeholder')) info.placeholder = el.getAttribute('placeholder');
		if (el.getAttribute('role')) info.role = el.getAttribute('role');
		if (el.getAttribute('name')) info.name = el.getAttribute('name');
		if (el.getAttribute('type')) info.input_type = el.getAttribute('type');
		if (el.getAttribute('data-tooltip')) info.tooltip = el.getAttribute('data-tooltip');
		if (el.getAttribute('title')) info.title = el.getAttribute('title');
		if (el.getAttribute('contenteditable') === 'true' || el.isContentEditable)
			info.contenteditable = true;

		const parent = el.closest('[aria-label], [role="navigation"], [role="banner"], [role="main"], [role="complementary"], nav, header, aside, main');
		if (parent && parent !== el) {
			const parentLabel = parent.getAttribute('aria-label') || parent.getAttribute('role') || parent.tagName.toLowerCase();
			if (parentLabel) info.parent_context = parentLabel.substring(0, 50);
		}
		if (el.id) {
			const label = document.querySelector('label[for="' + el.id + '"]');
			if (label) info.label = label.textContent.trim().substring(0, 40);
		}
		return info;
	}

	document.addEventListener('mousedown', (e) => {
		rec.events.push({
			type: 'click',
			x: Math.round(e.clientX),
			y: Math.round(e.clientY),
			timestamp: Date.now(),
			element: elementInfo(e.target)
		});
	}, true);

	document.addEventListener('change', (e) => {
		const el = e.target;
		if (el.tagName && (el.tagName === 'INPUT' || el.tagName === 'TEXTAREA' || el.tagName === 'SELECT')) {
			rec.events.push({ type: 'type', text: el.value, timestamp: Date.now(), element: elementInfo(el) });
		}
	}, true);

	let inputTimer = null;
	document.addEventListener('input', (e) => {
		const el = e.target;
		if (!el.tagName) return;
		const isEditable = el.isContentEditable;
		if (el.tagName !== 'INPUT' && el.tagName !== 'TEXTAREA' && !isEditable) return;

		const value = isEditable ? (el.innerText || '').trim() : el.value;
		const key = el.getAttribute('aria-label') || el.getAttribute('name') || el.getAttribute('placeholder') || el.getAttribute('role') || 'unknown';
		rec.lastInputValues[key] = { value, timestamp: Date.now(), element: elementInfo(el) };

		clearTimeout(inputTimer);
		inputTimer = setTimeout(() => {
			for (const v of Object.values(rec.lastInputValues)) {
				rec.events.push({ type: 'type', text: v.value, timestamp: v.timestamp, element: v.element });
			}
			rec.lastInputValues = {};
		}, 1000);
	}, true);

	document.addEventListener('keydown', (e) => {
		const special = ['Enter', 'Tab', 'Escape', 'Backspace', 'Delete'];
		if (special.includes(e.key)) {
			rec.events.push({ type: 'key', key: e.key, timestamp: Date.now(), element: elementInfo(e.target) });
		}
	}, true);
})();
`

// flushJS drains accumulated events, including any pending debounced input.
const flushJS = `
(() => {
	if (!window.__recorder) return [];
	const events = window.__recorder.events.splice(0);
	for (const v of Object.values(window.__recorder.lastInputValues)) {
		events.push({ type: 'type', text: v.value, timestamp: v.timestamp, element: v.element });
	}
	window.__recorder.lastInputValues = {};
	return events;
})()
`

const recorderPollInterval = 500 * time.Millisecond

// Recorder captures user interactions in the browser via injected
// JavaScript, polling for captured events and for navigations (which also
// require re-injection, since the script does not survive a page load).
type Recorder struct {
	page   playwright.Page
	logger zerolog.Logger

	mu      sync.Mutex
	events  []workflow.RawEvent
	running bool
	lastURL string
	stop    chan struct{}
	done    chan struct{}
}

func NewRecorder(page playwright.Page, logger zerolog.Logger) *Recorder {
	return &Recorder{page: page, logger: logger}
}

func (r *Recorder) IsRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Start injects the recorder script and begins polling.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	r.events = nil
	r.running = true
	r.lastURL = r.page.URL()
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	r.mu.Unlock()

	r.inject()
	go r.pollLoop(ctx)
	r.logger.Info().Str("url", r.lastURL).Msg("recording started")
	return nil
}

// Stop ends polling, performs a final flush, and returns all captured raw
// events in order.
func (r *Recorder) Stop() []workflow.RawEvent {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	close(r.stop)
	r.mu.Unlock()

	<-r.done
	r.flush()

	r.mu.Lock()
	events := r.events
	r.events = nil
	r.mu.Unlock()
	r.logger.Info().Int("events", len(events)).Msg("recording stopped")
	return events
}

func (r *Recorder) pollLoop(ctx context.Context) {
	defer close(r.done)
	ticker := time.NewTicker(recorderPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// Navigation leaves the injected script behind; record the
		// transition and re-inject on the new page.
		current := r.page.URL()
		if current != r.lastURL {
			r.logger.Info().Str("from", r.lastURL).Str("to", current).Msg("navigation detected")
			r.mu.Lock()
			r.events = append(r.events, workflow.RawEvent{
				Type:      "navigate",
				URL:       current,
				Timestamp: time.Now().UnixMilli(),
			})
			r.lastURL = current
			r.mu.Unlock()
			time.Sleep(recorderPollInterval)
			r.inject()
			continue
		}

		r.flush()
	}
}

func (r *Recorder) inject() {
	if _, err := r.page.Evaluate(recorderJS); err != nil {
		r.logger.Warn().Err(err).Msg("recorder inject failed")
	}
}

func (r *Recorder) flush() {
	val, err := r.page.Evaluate(flushJS)
	if err != nil {
		r.logger.Debug().Err(err).Msg("recorder flush failed (page may have navigated)")
		return
	}
	events := decodeRawEvents(val)
	if len(events) == 0 {
		return
	}
	r.mu.Lock()
	r.events = append(r.events, events...)
	r.mu.Unlock()
}

// decodeRawEvents converts the loosely-typed evaluate result into typed raw
// events via a JSON round trip.
func decodeRawEvents(val any) []workflow.RawEvent {
	data, err := json.Marshal(val)
	if err != nil {
		return nil
	}
	var events []workflow.RawEvent
	if err := json.Unmarshal(data, &events); err != nil {
		return nil
	}
	return events
}
