package browser

import "strings"

const (
	// bindingName is the page binding the reporter calls with every selection.
	bindingName = "__pagepilotReport"
	markerClass = "pagepilot-highlight"
)

// synthesizerSource evaluates to an object with css, xpath and describe
// functions. It follows the same rules as the selector package.
func synthesizerSource() string {
	return strings.NewReplacer("{{MARKER}}", markerClass).Replace(`(() => {
		const MARKER = '{{MARKER}}';
		const MAX_DEPTH = 3;
		const TEXT_LIMIT = 30;
		const ALLOWED = ['name', 'type', 'value', 'placeholder', 'href', 'src', 'alt', 'title'];

		const classesOf = (el) => {
			const raw = typeof el.className === 'string' ? el.className : (el.getAttribute('class') || '');
			return raw.split(/\s+/).filter(c => c && c !== MARKER);
		};

		const sameTag = (el) => {
			const parent = el.parentElement;
			if (!parent) return { index: 1, count: 1 };
			const siblings = Array.from(parent.children).filter(c => c.tagName === el.tagName);
			return { index: siblings.indexOf(el) + 1, count: siblings.length };
		};

		const path = (el) => {
			const segments = [];
			let current = el;
			for (let depth = 0; depth < MAX_DEPTH; depth++) {
				if (!current || current === document.documentElement) break;
				let segment = current.tagName.toLowerCase();
				const pos = sameTag(current);
				if (pos.count > 1) {
					segment += ':nth-child(' + pos.index + ')';
				}
				segments.unshift(segment);
				current = current.parentElement;
			}
			return segments.length ? segments.join(' > ') : el.tagName.toLowerCase();
		};

		const css = (el) => {
			if (el.id) return '#' + el.id;
			const classes = classesOf(el);
			if (classes.length) {
				for (const c of classes) {
					if (document.getElementsByClassName(c).length === 1) return '.' + c;
				}
				return el.tagName.toLowerCase() + '.' + classes.join('.');
			}
			return path(el);
		};

		const xpath = (el) => {
			if (el.id) return '//*[@id="' + el.id + '"]';
			const parts = [];
			for (let current = el; current && current.nodeType === Node.ELEMENT_NODE; current = current.parentNode) {
				let index = 1;
				for (let prev = current.previousElementSibling; prev; prev = prev.previousElementSibling) {
					if (prev.tagName === current.tagName) index++;
				}
				parts.unshift('/' + current.tagName.toLowerCase() + '[' + index + ']');
			}
			return parts.join('');
		};

		const truncate = (s) => {
			const chars = Array.from(s);
			return chars.length > TEXT_LIMIT ? chars.slice(0, TEXT_LIMIT).join('') + '...' : s;
		};

		const describe = (el) => {
			const attributes = {};
			for (const name of ALLOWED) {
				if (el.hasAttribute(name)) attributes[name] = el.getAttribute(name);
			}
			return {
				tagName: el.tagName.toLowerCase(),
				id: el.id || '',
				classes: classesOf(el).join(' '),
				text: truncate((el.textContent || '').trim()),
				cssSelector: css(el),
				xpathSelector: xpath(el),
				attributes: attributes,
			};
		};

		return { css, xpath, describe };
	})()`)
}

// reporterScript installs the pointer listeners once per document. It runs
// as an init script so it survives navigation.
func reporterScript() string {
	return strings.NewReplacer(
		"{{SYNTH}}", synthesizerSource(),
		"{{BINDING}}", bindingName,
		"{{MARKER}}", markerClass,
	).Replace(`(() => {
		if (window.__pagepilotReporter) return;
		window.__pagepilotReporter = true;

		const synth = {{SYNTH}};
		let currentElement = null;

		const clear = () => {
			if (currentElement) currentElement.classList.remove('{{MARKER}}');
		};

		const send = (msg) => {
			if (typeof window['{{BINDING}}'] === 'function') {
				window['{{BINDING}}'](msg);
			}
			if (window.parent && window.parent !== window) {
				window.parent.postMessage(msg, '*');
			}
		};

		const install = () => {
			const style = document.createElement('style');
			style.textContent = '.{{MARKER}} { outline: 2px solid #e8590c !important; cursor: crosshair !important; }';
			(document.head || document.documentElement).appendChild(style);

			document.addEventListener('mouseover', (e) => {
				clear();
				currentElement = e.target;
				currentElement.classList.add('{{MARKER}}');
				e.stopPropagation();
			}, true);

			document.addEventListener('mouseout', (e) => {
				clear();
				currentElement = null;
				e.stopPropagation();
			}, true);

			document.addEventListener('click', (e) => {
				if (!currentElement) return;
				send({ type: 'elementSelected', element: synth.describe(currentElement) });
				e.preventDefault();
				e.stopPropagation();
			}, true);
		};

		if (document.readyState === 'loading') {
			document.addEventListener('DOMContentLoaded', install, { once: true });
		} else {
			install();
		}
	})()`)
}

// snapshotScript is evaluated over every element a locator matches.
func snapshotScript() string {
	return `(elements) => elements.map((el) => {
		const rect = el.getBoundingClientRect();
		return {
			tagName: el.tagName,
			id: el.id || '',
			className: typeof el.className === 'string' ? el.className : (el.getAttribute('class') || ''),
			text: el.textContent || '',
			innerHTML: el.innerHTML,
			outerHTML: el.outerHTML,
			attributes: Array.from(el.attributes).map((a) => ({ name: a.name, value: a.value })),
			boundingBox: { x: rect.x, y: rect.y, width: rect.width, height: rect.height },
		};
	})`
}

func describeScript() string {
	return `(elements) => {
		const synth = ` + synthesizerSource() + `;
		return elements.map((el) => synth.describe(el));
	}`
}
