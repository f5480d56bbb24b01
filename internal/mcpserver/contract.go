package mcpserver

// PostFormatContract describes the Markdown a post body must follow for the
// blog to render it.
const PostFormatContract = `# Post Format Contract

A post is a title plus a Markdown body. Drafts imported from files may carry
YAML frontmatter; only ` + "`" + `title` + "`" + ` is read from it.

## Structure

` + "```" + `markdown
---
title: Human-readable title   # OPTIONAL – falls back to the first "# " heading
---

Body text in GitHub-flavoured Markdown (tables, task lists, autolinks).
` + "```" + `

## Rules

1. **Title and body are both required** to publish. Titles are at most 200 characters.
2. When the title comes from the first ` + "`" + `# ` + "`" + ` heading, that heading is removed from the body.
3. **Images** must be hosted. Upload them with the ` + "`" + `upload_image` + "`" + ` tool and paste
   the returned ` + "`" + `markdownImage` + "`" + ` into the body.
4. References whose URL starts with ` + "`" + `uploading://` + "`" + ` are upload placeholders. A body
   that still contains one cannot be published.
5. **Video** is embedded as HTML: ` + "`" + `<video src="URL" controls></video>` + "`" + `.
6. Other raw HTML is sanitized out of the rendered post.

## Example

` + "```" + `markdown
---
title: 周末的爬山记录
---

Left early, came back late.

![Uploaded Image](https://cdn.example.com/uploads/20250120-1f2e.png)

<video src="https://cdn.example.com/uploads/summit.mp4" controls></video>
` + "```" + `
`
