package mcpserver

// NoteFormatContract describes the canonical Markdown note format that
// LLM consumers should follow so the automation daemon can pick notes up.
const NoteFormatContract = `# InnerOS Note Format Contract

Every Markdown note stored in the InnerOS vault MUST follow this structure.

## Structure

` + "```" + `markdown
---
title: Human-readable title         # OPTIONAL – falls back to the first H1
type: fleeting                      # REQUIRED – fleeting | literature | permanent
status: inbox                       # OPTIONAL – defaults to inbox
tags:                               # OPTIONAL – YAML list; lowercase
  - tag-one
ready_for_processing: true          # Set true to let automation enrich the note
---

Body text in standard Markdown.

Use [[wikilinks]] to reference other notes (without .md extension).
` + "```" + `

## Lifecycle

Notes move through: inbox -> draft/promoted -> published -> archived.
Archived is terminal.

- New captures land in ` + "`" + `Inbox/` + "`" + ` with status ` + "`" + `inbox` + "`" + `.
- Enrichment sets ` + "`" + `quality_score` + "`" + `, ` + "`" + `ai_processed` + "`" + `,
  ` + "`" + `processed_date` + "`" + ` and advances the status to ` + "`" + `promoted` + "`" + `.
- The promotion engine moves promoted notes that clear the quality gate
  into their type directory (Fleeting Notes, Literature, Permanent Notes)
  and sets status ` + "`" + `published` + "`" + ` with a ` + "`" + `promoted_date` + "`" + `.

## Rules

1. **YAML frontmatter fences must be the first thing in the file.**
2. **` + "`" + `type` + "`" + ` must be one of** ` + "`" + `fleeting` + "`" + `, ` + "`" + `literature` + "`" + `, ` + "`" + `permanent` + "`" + `.
   Notes with other types are never promoted.
3. **Never set lifecycle fields by hand** (` + "`" + `quality_score` + "`" + `, ` + "`" + `ai_processed` + "`" + `,
   ` + "`" + `processed_date` + "`" + `, ` + "`" + `promoted_date` + "`" + `); automation owns them.
4. **Automation only touches the keys it owns.** Any other frontmatter key
   you add is preserved byte-for-byte across rewrites.
5. **File paths** end with ` + "`" + `.md` + "`" + ` and use forward slashes.
6. **Encoding** is UTF-8 with a trailing newline.

## Example

` + "```" + `markdown
---
title: Interesting article on spaced repetition
type: literature
source: web
ready_for_processing: true
tags:
  - learning
---

https://example.com/spaced-repetition

Key claim: review intervals should grow geometrically.
` + "```" + `
`
