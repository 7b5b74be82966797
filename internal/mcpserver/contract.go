package mcpserver

// NoteFormatContract describes how rplanner notes are structured, for LLM
// consumers that read or edit them through the tools.
const NoteFormatContract = `# rplanner Note Format

A note is an ordered list of fragments plus a last-modified date.

## Fragments

- **Text**: plain text. Newlines are ordinary characters inside a fragment;
  they never split it.
- **Image**: the file name of an image in the image directory
  (for example ` + "`" + `cat.png` + "`" + `). Images are never split or merged.

A fragment's number is its position in the note, starting at 0. Numbers are
always dense: deleting fragment 2 renumbers everything after it.

## Editing rules

1. ` + "`" + `insert_image` + "`" + ` targets a text fragment and a character offset
   (Unicode code points, not bytes). The text is split into the part before
   the offset, the image, and the part after it. Both text parts are kept
   even when empty.
2. ` + "`" + `delete_fragment` + "`" + ` removes one fragment. When the fragments that
   become neighbours are both text, they are joined into one.
3. ` + "`" + `replace_note_text` + "`" + ` replaces the whole note with a single text
   fragment. Images in the note are dropped.
4. Images must exist before they are inserted. Add them with
   ` + "`" + `upload_image` + "`" + ` and check with ` + "`" + `list_images` + "`" + `.

## Reading

` + "`" + `read_note` + "`" + ` renders a note as plain text with every image written as a
Markdown image link: ` + "`" + `![](/images/cat.png)` + "`" + `.

## Example

` + "```" + `json
{
  "content": [
    {"Text": "Groceries:\n- oat milk\n"},
    {"Image": "receipt.jpg"},
    {"Text": "\nPaid by card."}
  ],
  "date": "Fri, 01 Mar 2024 12:00:00 +0000"
}
` + "```" + `
`
