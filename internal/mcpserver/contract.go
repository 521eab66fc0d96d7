package mcpserver

// DocumentContractURI is the resource URI of DocumentContract.
const DocumentContractURI = "tagshelf://document-format"

// DocumentContract describes the portable library document that LLM
// consumers should produce when importing tags.
const DocumentContract = `# Tagshelf Document Format Contract

A library document is a JSON or YAML tree: library → groups → categories → tags.
Documents never carry ids. Names are the identity used when merging.

## Structure

` + "```" + `json
{
  "$schema": "tagshelf://schema/library-v3",
  "version": "3.0",
  "library": { "name": "Portraits", "description": "optional" },
  "groups": [
    {
      "name": "Style",              // REQUIRED
      "color": "#ff8800",           // OPTIONAL
      "icon": "brush",              // OPTIONAL
      "order": 0,                   // OPTIONAL – lower sorts first
      "categories": [
        {
          "name": "Medium",         // REQUIRED, unique within the group
          "tags": [
            {
              "name": "watercolor",               // REQUIRED, unique within the category
              "keyword": "watercolor painting",   // OPTIONAL – text inserted when the tag is used
              "subtitles": ["soft edges"],        // OPTIONAL – extra search terms
              "weight": 1.2,                      // OPTIONAL – higher sorts first
              "color": "#3366ff"                  // OPTIONAL
            }
          ]
        }
      ]
    }
  ]
}
` + "```" + `

## Rules

1. **Every group and category needs a name.** A nameless group or category
   rejects the whole document and nothing is written.
2. **Names compare case-insensitively** within their parent.
3. **Import modes:**
   - ` + "`" + `merge` + "`" + ` (default) keeps existing content. Groups and categories are
     matched by name; tags whose name already exists in the category are skipped
     and reported as warnings.
   - ` + "`" + `replace` + "`" + ` clears the active library first, then writes the document.
4. **Older layouts are accepted:** a flat ` + "`" + `{"categories": [...], "tags": [...]}` + "`" + `
   document, where tags reference ` + "`" + `categoryName` + "`" + `, is placed in a "General" group.
5. **Encoding** is UTF-8. YAML uses the same keys as JSON.

## Example (YAML)

` + "```" + `yaml
version: "3.0"
library:
  name: Portraits
groups:
  - name: Lighting
    categories:
      - name: Direction
        tags:
          - name: rim light
            subtitles: [backlight]
          - name: split lighting
` + "```" + `
`
