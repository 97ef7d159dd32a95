package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"knightvm/knight"

	"github.com/tliron/commonlog"

	_ "github.com/tliron/commonlog/simple"
)

var log commonlog.Logger

// TypeRegistry maps value type names to their anchor on the values page.
var TypeRegistry = make(map[string]string)

type SearchItem struct {
	Label  string `json:"l"`
	Parent string `json:"p"`
	Type   string `json:"t"`
	Link   string `json:"u"`
	Desc   string `json:"d"`
}

type SiteMeta struct {
	Title           string
	GeneratedAt     string
	Features        string
	Nav             []NavItem
	SearchIndexJSON template.JS
}

type NavItem struct {
	Label    string
	Link     string
	IsActive bool
}

type PageData struct {
	Meta      SiteMeta
	Title     string
	File      string
	IsHome    bool
	HomeStats []HomeStat
	Category  Category
}

type HomeStat struct {
	Title string
	Desc  string
	Count int
	Link  string
}

type Category struct {
	Name        string
	Description string
	Items       []DocItem
}

type DocItem struct {
	ID          string
	Name        string
	Key         string
	Arity       int
	Signature   template.HTML
	Summary     string
	Description string
	Params      []ParamDetail
	Returns     template.HTML
}

type ParamDetail struct {
	Name string
	Desc template.HTML
}

// valueDocs describes the value types operators accept and return.
var valueDocs = []struct{ name, desc string }{
	{"null", "The single null value. Falsy, converts to the empty string, 0 and the empty list."},
	{"boolean", "TRUE or FALSE. Converts to 1 or 0, to \"true\" or \"false\", and to a list holding itself when true."},
	{"integer", "A signed 64 bit integer, or 32 bit under compliance. Arithmetic that overflows is an error. Zero is falsy."},
	{"float", "A 64 bit float, available with the floats feature. Floats only combine with floats."},
	{"string", "An immutable byte string. The empty string is falsy. Converting to an integer reads an optional sign and leading digits."},
	{"list", "An immutable list of values. The empty list is falsy. Lists are built with , and + and sliced with GET and SET."},
	{"block", "Deferred code produced by BLOCK and run by CALL. Blocks have no conversions and compare equal only to the same block."},
	{"custom", "A value supplied by a host program, available with the custom-types feature."},
	{"any", "Any value."},
}

func main() {
	outputDir := flag.String("o", "docs", "output directory")
	features := flag.String("features", "extensions", "comma separated features to document ("+strings.Join(knight.FeatureNames(), ", ")+")")
	flag.Parse()

	commonlog.Configure(1, nil)
	log = commonlog.GetLogger("knightdoc")

	f, err := knight.ParseFeatures(*features)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	meta, pages := preparePages(knight.NewDispatchTable(f))

	t, err := template.New("knight").Parse(htmlTemplate)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	failed := false
	for _, p := range pages {
		p.Meta = setActiveNav(meta, p.Title)
		fullPath := filepath.Join(*outputDir, p.File)
		if err := render(t, fullPath, p); err != nil {
			log.Errorf("%s: %s", fullPath, err)
			failed = true
			continue
		}
		fmt.Printf("Generated: %s\n", fullPath)
	}
	if failed {
		os.Exit(1)
	}
}

func render(t *template.Template, path string, p PageData) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := t.Execute(f, p); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func linkify(text string) template.HTML {
	if text == "" {
		return ""
	}
	re := regexp.MustCompile(`\b[a-z]+\b`)
	processed := re.ReplaceAllStringFunc(template.HTMLEscapeString(text), func(word string) string {
		if link, ok := TypeRegistry[word]; ok {
			return fmt.Sprintf(`<a href="%s" class="type-link">%s</a>`, link, word)
		}
		return word
	})
	return template.HTML(processed)
}

func preparePages(table *knight.DispatchTable) (SiteMeta, []PageData) {
	meta := SiteMeta{
		Title:       "Knight Reference",
		GeneratedAt: time.Now().Format("Jan 02, 2006"),
		Features:    table.Features().String(),
	}
	if meta.Features == "" {
		meta.Features = "none"
	}

	values := Category{Name: "Values", Description: "The value types every operator works with."}
	for _, v := range valueDocs {
		TypeRegistry[v.name] = "values.html#" + slugify(v.name)
	}
	for _, v := range valueDocs {
		values.Items = append(values.Items, DocItem{
			ID:          slugify(v.name),
			Name:        v.name,
			Summary:     extractSummary(v.desc),
			Description: v.desc,
		})
	}

	forms := Category{Name: "Literals and Special Forms", Description: "Operators the compiler lowers to constants, jumps and calls instead of dispatching."}
	core := Category{Name: "Core Operators", Description: "Operators every Knight implementation provides. Operands are evaluated left to right before the operator runs."}
	ext := Category{Name: "Extensions", Description: "Operators available with the extensions feature."}
	for _, b := range table.Entries() {
		item := buildDocItem(b)
		switch {
		case b.Extension:
			ext.Items = append(ext.Items, item)
		case b.Form != knight.FormDispatch:
			forms.Items = append(forms.Items, item)
		default:
			core.Items = append(core.Items, item)
		}
	}

	var pages []PageData
	var stats []HomeStat
	var searchItems []SearchItem
	for _, cat := range []Category{forms, core, ext, values} {
		if len(cat.Items) == 0 {
			continue
		}
		file := slugify(strings.Fields(cat.Name)[0]) + ".html"
		pages = append(pages, PageData{Title: cat.Name, File: file, Category: cat})
		meta.Nav = append(meta.Nav, NavItem{Label: cat.Name, Link: file})
		stats = append(stats, HomeStat{Title: cat.Name, Desc: cat.Description, Count: len(cat.Items), Link: file})

		kind := "op"
		if cat.Name == values.Name {
			kind = "type"
		}
		for _, item := range cat.Items {
			searchItems = append(searchItems, SearchItem{
				Label: item.Name, Parent: cat.Name, Type: kind, Link: file + "#" + item.ID, Desc: item.Summary,
			})
		}
	}

	jsonBytes, err := json.Marshal(searchItems)
	if err != nil {
		log.Errorf("search index: %s", err)
		jsonBytes = []byte("[]")
	}
	meta.SearchIndexJSON = template.JS(jsonBytes)

	homePage := PageData{Title: "Home", File: "index.html", IsHome: true, HomeStats: stats}
	return meta, append([]PageData{homePage}, pages...)
}

func setActiveNav(meta SiteMeta, currentTitle string) SiteMeta {
	nav := make([]NavItem, len(meta.Nav))
	for i, item := range meta.Nav {
		item.IsActive = item.Label == currentTitle
		nav[i] = item
	}
	meta.Nav = nav
	return meta
}

func buildDocItem(b *knight.Builtin) DocItem {
	item := DocItem{Name: b.Name, Key: b.Key, Arity: b.Arity, ID: slugify(b.Name)}
	retStr := ""
	if b.Doc != nil {
		item.Description = b.Doc.Description
		item.Summary = extractSummary(b.Doc.Description)
		item.Returns = linkify(b.Doc.Returns)
		retStr = b.Doc.Returns
		for _, p := range b.Doc.Params {
			item.Params = append(item.Params, ParamDetail{Name: p.Name, Desc: linkify(p.Description)})
		}
	}
	item.Signature = buildSignature(b.Name, item.Params, retStr)
	return item
}

func extractSummary(desc string) string {
	if idx := strings.Index(desc, ". "); idx != -1 {
		return desc[:idx+1]
	}
	return desc
}

func buildSignature(name string, params []ParamDetail, ret string) template.HTML {
	var sb strings.Builder
	fmt.Fprintf(&sb, `<span class="fn">%s</span>`, template.HTMLEscapeString(name))
	for _, p := range params {
		fmt.Fprintf(&sb, ` <span class="arg">%s</span>`, template.HTMLEscapeString(p.Name))
	}
	if ret != "" {
		sb.WriteString(` <span class="punct">&rarr;</span> <span class="ret">` + string(linkify(ret)) + `</span>`)
	}
	return template.HTML(sb.String())
}

// slugify keeps word names readable and spells out symbol operators so
// every anchor is a plain identifier.
func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '_':
			sb.WriteByte(c)
		case c == ' ' || c == '-':
			sb.WriteByte('-')
		default:
			fmt.Fprintf(&sb, "op%02x", c)
		}
	}
	return sb.String()
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{if .Title}}{{.Title}} - {{end}}{{.Meta.Title}}</title>
    <style>
        :root {
            --bg: #101214; --panel: #171a1e; --card: #1d2126; --line: #2c3138;
            --text: #e8e8e8; --dim: #959ca6; --mute: #5f6570; --accent: #d4a017;
            --fn: #61afef; --arg: #d19a66; --ret: #56b6c2;
        }
        * { box-sizing: border-box; }
        body { margin: 0; font-family: system-ui, sans-serif; background: var(--bg); color: var(--text); display: flex; height: 100vh; overflow: hidden; }
        a { color: inherit; text-decoration: none; }
        a.type-link { border-bottom: 1px dotted currentColor; }
        code, .mono { font-family: ui-monospace, monospace; }

        aside { width: 260px; background: var(--panel); border-right: 1px solid var(--line); display: flex; flex-direction: column; flex-shrink: 0; }
        .brand { padding: 18px 20px; border-bottom: 1px solid var(--line); }
        .brand h1 { margin: 0; font-size: 1.05rem; }
        .brand small { color: var(--mute); }
        .search { padding: 14px; position: relative; }
        #search { width: 100%; background: var(--card); border: 1px solid var(--line); color: var(--text); padding: 7px 10px; border-radius: 5px; }
        .results { position: absolute; top: 100%; left: 10px; right: 10px; background: var(--card); border: 1px solid var(--line); border-radius: 5px; max-height: 380px; overflow-y: auto; display: none; }
        .results.visible { display: block; }
        .sr-item { padding: 8px 12px; border-bottom: 1px solid var(--line); cursor: pointer; }
        .sr-item:hover { background: var(--panel); }
        .sr-name { font-family: ui-monospace, monospace; font-weight: 600; }
        .sr-parent, .sr-desc { font-size: 0.8rem; color: var(--dim); }
        .sr-empty { padding: 12px; color: var(--mute); text-align: center; }
        nav { flex: 1; overflow-y: auto; padding: 10px 0; }
        .nav-item { display: block; padding: 6px 20px; color: var(--dim); border-left: 2px solid transparent; }
        .nav-item:hover { color: #fff; }
        .nav-item.active { color: #fff; border-left-color: var(--accent); }

        main { flex: 1; overflow-y: auto; }
        .container { max-width: 880px; margin: 0 auto; padding: 36px 56px; }
        .page-title { font-size: 2.2rem; margin: 0 0 8px 0; }
        .page-desc { color: var(--dim); line-height: 1.6; }
        .grid { display: grid; grid-template-columns: repeat(auto-fill, minmax(260px, 1fr)); gap: 18px; margin-top: 28px; }
        .tile { background: var(--card); border: 1px solid var(--line); border-radius: 8px; padding: 18px; }
        .tile:hover { border-color: var(--accent); }
        .tile b { display: block; font-size: 1.1rem; margin-bottom: 6px; }
        .tile span { color: var(--dim); font-size: 0.9rem; }

        .idx { width: 100%; border-collapse: collapse; margin: 24px 0 32px 0; font-size: 0.9rem; }
        .idx th { text-align: left; color: var(--mute); padding: 8px 12px; border-bottom: 1px solid var(--line); }
        .idx td { padding: 8px 12px; border-bottom: 1px solid var(--line); color: var(--dim); }
        .idx a { color: var(--fn); font-family: ui-monospace, monospace; }
        .card { background: var(--card); border: 1px solid var(--line); border-radius: 8px; margin-bottom: 26px; }
        .card-head { padding: 10px 18px; border-bottom: 1px solid var(--line); font-family: ui-monospace, monospace; display: flex; justify-content: space-between; }
        .card-body { padding: 18px; line-height: 1.6; }
        .key { color: var(--mute); font-size: 0.85rem; }
        .lbl { display: block; font-size: 0.75rem; font-weight: 700; color: var(--mute); text-transform: uppercase; margin: 14px 0 6px 0; }
        .params td { padding: 3px 14px 3px 0; vertical-align: top; }
        .p-name { font-family: ui-monospace, monospace; color: var(--arg); }
        .fn { color: var(--fn); font-weight: 600; } .arg { color: var(--arg); } .ret { color: var(--ret); } .punct { color: var(--mute); }
    </style>
</head>
<body>
    <aside>
        <div class="brand"><h1><a href="index.html">{{.Meta.Title}}</a></h1><small>features: {{.Meta.Features}}</small></div>
        <div class="search">
            <input type="text" id="search" placeholder="Search (e.g. OUTPUT)">
            <div id="results" class="results"></div>
        </div>
        <nav>
            <a href="index.html" class="nav-item {{if .IsHome}}active{{end}}">Home</a>
            {{range .Meta.Nav}}<a href="{{.Link}}" class="nav-item {{if .IsActive}}active{{end}}">{{.Label}}</a>{{end}}
        </nav>
    </aside>
    <main>
        <div class="container">
            {{if .IsHome}}
                <h1 class="page-title">{{.Meta.Title}}</h1>
                <p class="page-desc">Operators of the Knight language, generated on {{.Meta.GeneratedAt}}.</p>
                <div class="grid">
                    {{range .HomeStats}}
                    <a href="{{.Link}}" class="tile"><b>{{.Title}} ({{.Count}})</b><span>{{.Desc}}</span></a>
                    {{end}}
                </div>
            {{else}}
                <h1 class="page-title">{{.Category.Name}}</h1>
                {{if .Category.Description}}<p class="page-desc">{{.Category.Description}}</p>{{end}}
                <table class="idx">
                    <thead><tr><th>Name</th><th>Summary</th></tr></thead>
                    <tbody>
                        {{range .Category.Items}}<tr><td><a href="#{{.ID}}">{{.Name}}</a></td><td>{{.Summary}}</td></tr>{{end}}
                    </tbody>
                </table>
                {{range .Category.Items}}
                <div id="{{.ID}}" class="card">
                    <div class="card-head">
                        <div>{{if .Signature}}{{.Signature}}{{else}}<span class="fn">{{.Name}}</span>{{end}}</div>
                        {{if .Key}}<span class="key">{{.Key}}/{{.Arity}}</span>{{end}}
                    </div>
                    <div class="card-body">
                        <div>{{.Description}}</div>
                        {{if .Params}}
                            <span class="lbl">Operands</span>
                            <table class="params">
                                {{range .Params}}<tr><td class="p-name">{{.Name}}</td><td>{{.Desc}}</td></tr>{{end}}
                            </table>
                        {{end}}
                        {{if .Returns}}<span class="lbl">Returns</span><div class="ret mono">{{.Returns}}</div>{{end}}
                    </div>
                </div>
                {{end}}
            {{end}}
        </div>
    </main>
    <script>
        const searchIndex = {{.Meta.SearchIndexJSON}};
        const input = document.getElementById('search');
        const box = document.getElementById('results');

        function score(item, term) {
            const name = item.l.toLowerCase();
            if (name === term) return 100;
            if (name.startsWith(term)) return 50;
            if (name.includes(term)) return 10;
            if ((item.d || '').toLowerCase().includes(term)) return 2;
            return 0;
        }

        function search() {
            const term = input.value.toLowerCase().trim();
            if (term.length < 1) {
                box.classList.remove('visible');
                return;
            }
            const matches = searchIndex
                .map(item => ({ item, s: score(item, term) }))
                .filter(m => m.s > 0)
                .sort((a, b) => b.s - a.s)
                .slice(0, 12);

            box.innerHTML = '';
            if (matches.length === 0) {
                box.innerHTML = '<div class="sr-empty">No results</div>';
            }
            matches.forEach(m => {
                const div = document.createElement('div');
                div.className = 'sr-item';
                div.onclick = () => { window.location.href = m.item.u; };
                const name = document.createElement('div');
                name.className = 'sr-name';
                name.textContent = m.item.l;
                const parent = document.createElement('div');
                parent.className = 'sr-parent';
                parent.textContent = m.item.p + ' / ' + m.item.t;
                const desc = document.createElement('div');
                desc.className = 'sr-desc';
                desc.textContent = m.item.d || '';
                div.append(name, parent, desc);
                box.appendChild(div);
            });
            box.classList.add('visible');
        }

        let debounce;
        input.addEventListener('input', () => {
            clearTimeout(debounce);
            debounce = setTimeout(search, 100);
        });
        document.addEventListener('click', e => {
            if (!input.contains(e.target) && !box.contains(e.target)) box.classList.remove('visible');
        });
    </script>
</body>
</html>`
