package executor

// extractionScript scrapes the page's main content into uniform rows. It
// prefers semantic containers (articles, list items, table rows) and falls
// back to headings with their following text.
const extractionScript = `(() => {
	const rows = [];
	const push = (title, text, link) => {
		title = (title || "").trim().slice(0, 200);
		text = (text || "").trim().slice(0, 1000);
		if (!title && !text) return;
		rows.push({title, text, link: link || "", url: location.href});
	};

	const containers = document.querySelectorAll("article, [role='article'], li, tr");
	for (const c of containers) {
		if (rows.length >= 100) break;
		const txt = (c.innerText || "").trim();
		if (txt.length < 40) continue;
		const heading = c.querySelector("h1,h2,h3,h4,a");
		const link = c.querySelector("a[href]");
		push(heading ? heading.innerText : "", txt, link ? link.href : "");
	}

	if (rows.length === 0) {
		for (const h of document.querySelectorAll("h1,h2,h3")) {
			if (rows.length >= 50) break;
			let text = "";
			let node = h.nextElementSibling;
			while (node && text.length < 600 && !/^H[1-3]$/.test(node.tagName)) {
				text += " " + (node.innerText || "");
				node = node.nextElementSibling;
			}
			push(h.innerText, text, "");
		}
	}
	return rows;
})()`
