package browser

// 与页面交互的脚本集合。字段定位采用 data-ea-ref 标记：快照阶段给每个
// 表单分组打上引用属性，填写阶段按引用回查，避免在 Go 侧维护选择器。

const bootstrapJS = `() => {
	if (window.__eaBanner) return true;
	const banner = document.createElement('div');
	banner.id = 'ea-status-banner';
	banner.style.cssText = 'position:fixed;top:0;left:0;right:0;z-index:2147483647;' +
		'padding:6px 12px;font:13px sans-serif;color:#fff;background:#0a66c2;display:none;';
	document.documentElement.appendChild(banner);
	window.__eaBanner = banner;
	return true;
}`

const setStatusJS = `(text, waiting) => {
	const banner = window.__eaBanner;
	if (!banner) return false;
	if (!text) {
		banner.style.display = 'none';
		return true;
	}
	banner.textContent = text;
	banner.style.background = waiting ? '#b24020' : '#0a66c2';
	banner.style.display = 'block';
	return true;
}`

const openModalJS = `() => {
	const re = /easy apply/i;
	const btns = Array.from(document.querySelectorAll('button:not([disabled])'));
	let btn = btns.find(b => re.test(b.innerText || '') || re.test(b.getAttribute('aria-label') || ''));
	if (!btn) btn = document.querySelector('.jobs-apply-button');
	if (!btn) return false;
	btn.click();
	return true;
}`

const snapshotJS = `() => {
	const modal = document.querySelector('.jobs-easy-apply-modal');
	const container = modal || document;
	const out = { modalOpen: !!modal, hasErrors: false, fields: [], buttons: [] };
	out.hasErrors = container.querySelectorAll(
		'.artdeco-inline-feedback--error, .fb-form-element__error-text').length > 0;

	const labelText = (group, input) => {
		const legend = group.querySelector('legend, .fb-form-element-label, label');
		if (legend && legend.innerText.trim()) return legend.innerText.trim();
		if (input.id) {
			const l = container.querySelector('label[for="' + CSS.escape(input.id) + '"]');
			if (l && l.innerText.trim()) return l.innerText.trim();
		}
		return (input.getAttribute('aria-label') || '').trim();
	};
	const optionLabel = (input) => {
		if (input.id) {
			const l = container.querySelector('label[for="' + CSS.escape(input.id) + '"]');
			if (l) return l.innerText.trim();
		}
		return (input.value || '').trim();
	};

	let seq = 0;
	for (const group of container.querySelectorAll('.jobs-easy-apply-form-element')) {
		const input = group.querySelector('input, select, textarea');
		if (!input) continue;
		const ref = 'ea-' + (seq++);
		group.setAttribute('data-ea-ref', ref);
		const required = group.innerText.includes('*') ||
			!!group.querySelector('[aria-required="true"], [required]');
		let kind, filled = false, options = [];
		if (input.tagName === 'SELECT') {
			kind = 'select';
			filled = !!input.value && !/select/i.test(input.options[input.selectedIndex]?.text || '');
			options = Array.from(input.options).map(o => o.text.trim()).filter(Boolean);
		} else if (input.type === 'radio' || input.type === 'checkbox') {
			kind = input.type;
			const inputs = Array.from(group.querySelectorAll('input'));
			filled = inputs.some(i => i.checked);
			options = inputs.map(optionLabel).filter(Boolean);
		} else if (input.tagName === 'TEXTAREA') {
			kind = 'textarea';
			filled = !!input.value.trim();
		} else {
			kind = 'text';
			filled = !!input.value.trim();
		}
		out.fields.push({ ref, kind, label: labelText(group, input), required, filled, options });
	}

	const scope = modal || document;
	for (const b of scope.querySelectorAll('button:not([disabled])')) {
		const label = (b.innerText || b.getAttribute('aria-label') || '').trim();
		if (label) out.buttons.push({ label });
	}
	return out;
}`

const clickButtonJS = `(label) => {
	const want = label.trim().toLowerCase();
	const modal = document.querySelector('.jobs-easy-apply-modal');
	const scope = modal || document;
	for (const b of scope.querySelectorAll('button:not([disabled])')) {
		const got = ((b.innerText || b.getAttribute('aria-label') || '').trim()).toLowerCase();
		if (got === want) { b.click(); return true; }
	}
	return false;
}`

const clickMatchingJS = `(pattern, flags) => {
	const re = new RegExp(pattern, flags);
	for (const b of document.querySelectorAll('button:not([disabled])')) {
		const label = (b.innerText || b.getAttribute('aria-label') || '').trim();
		if (re.test(label)) { b.click(); return true; }
	}
	return false;
}`

const dismissJS = `() => {
	const btn = document.querySelector('button[aria-label="Dismiss"], .artdeco-modal__dismiss');
	if (!btn) return false;
	btn.click();
	return true;
}`

const setTextJS = `(ref, value) => {
	const group = document.querySelector('[data-ea-ref="' + ref + '"]');
	if (!group) return false;
	const input = group.querySelector('input, textarea');
	if (!input) return false;
	input.focus();
	input.value = value;
	input.dispatchEvent(new Event('input', { bubbles: true }));
	input.dispatchEvent(new Event('change', { bubbles: true }));
	input.blur();
	return true;
}`

const selectOptionJS = `(ref, option) => {
	const group = document.querySelector('[data-ea-ref="' + ref + '"]');
	if (!group) return false;
	const sel = group.querySelector('select');
	if (!sel) return false;
	const want = option.trim().toLowerCase();
	for (const o of sel.options) {
		if (o.text.trim().toLowerCase().includes(want)) {
			sel.value = o.value;
			sel.dispatchEvent(new Event('change', { bubbles: true }));
			return true;
		}
	}
	return false;
}`

const chooseRadioJS = `(ref, option) => {
	const group = document.querySelector('[data-ea-ref="' + ref + '"]');
	if (!group) return false;
	const want = option.trim().toLowerCase();
	for (const input of group.querySelectorAll('input')) {
		let label = (input.value || '').trim();
		if (input.id) {
			const l = document.querySelector('label[for="' + CSS.escape(input.id) + '"]');
			if (l) label = l.innerText.trim();
		}
		if (label.toLowerCase().includes(want)) {
			input.click();
			input.dispatchEvent(new Event('change', { bubbles: true }));
			return true;
		}
	}
	return false;
}`
