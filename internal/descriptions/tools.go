package descriptions

// Tool descriptions shown to MCP clients, with practical examples and workflows

const (
	// Compression Tools
	PDFCompressFileDescription = `Shrink a PDF towards a target size by re-rendering every page as a compressed image.

**When to use:** A PDF is too large to email, upload, or attach and its pages can be flattened to images (scans, slide decks, image-heavy reports).

**How it works:** Each page is rasterized, re-encoded as JPEG at a quality derived from target/original size, and reassembled in page order. Quality is clamped to 0.1-0.7; small ratios render at 1.0x, larger ones at 1.5x.

**Examples:**
• Email limit: "Compress scan-2024.pdf to 500 KB so it fits in an email"
• Upload portal: "Make application.pdf smaller than 2 MB"
• Default target: "Compress report.pdf" (target suggested as 40% of the input, at least 20 KB)

**Common workflows:**
1. Validate → Compress → Check met_target in the response
2. Compress → Not met → Retry with a smaller target_size_kb

**Important:** The target is an approximation, not a guarantee. Text becomes part of the page image and is no longer selectable. The input file is never overwritten.`

	PDFCompressBatchDescription = `Compress several PDFs at once with the same target size.

**When to use:** A folder of scans or exports must all be brought under a size limit.

**How it works:** Files are compressed concurrently by a bounded worker pool; each file is an independent job. A failing file is reported in its own entry and does not stop the others.

**Examples:**
• "Compress invoice-01.pdf, invoice-02.pdf and invoice-03.pdf to 300 KB each"
• "Shrink every PDF from pdf_server_info's directory listing"

**Best practices:** Check the per-file status in the response; overall_ratio summarizes bytes saved across the successful files.`

	// Page Tools
	PDFMergeFilesDescription = `Combine two or more PDFs into one document.

**When to use:** Several documents belong together (chapters, signed pages, appendices).

**Examples:**
• "Merge cover.pdf, body.pdf and appendix.pdf into report.pdf"
• "Append signature-page.pdf to contract.pdf"

**Best practices:** Pages are copied in input order, every page of every input. The default output is merged_document.pdf next to the first input.`

	PDFSplitFileDescription = `Split a PDF into single-page PDF files.

**When to use:** Individual pages must be shared, reordered, or processed separately.

**Examples:**
• "Split statement.pdf into one file per page"
• "Extract the pages of scan.pdf into the pages/ directory"

**Best practices:** Outputs are named page_1.pdf, page_2.pdf, ... in page order inside output_dir (default: next to the input).`

	PDFLockFileDescription = `Re-save a PDF for password protection.

**When to use:** Preparing a document for a protected hand-off.

**Important:** Encryption is NOT applied yet. The document is re-saved unchanged and the response reports protected=false. Do not rely on this tool to secure content.`

	// Image Tools
	PDFImagesToPDFDescription = `Build a PDF from JPEG and PNG images, one full-page image per page.

**When to use:** Photos of receipts, scanned pages, or screenshots must be delivered as one document.

**Examples:**
• "Turn page1.jpg, page2.jpg and page3.png into scan.pdf"

**Best practices:** Each page takes the pixel size of its image. Files that are not JPEG or PNG are skipped and listed in the response.`

	PDFToImagesDescription = `Render every page of a PDF to a JPEG image.

**When to use:** Previews, thumbnails, or feeding pages to an image-based workflow.

**Examples:**
• "Render brochure.pdf to images at scale 2"
• "Create low-quality previews of slides.pdf with quality 40"

**Best practices:** scale is relative to 72 DPI (0.1-4.0, default 1.5); quality is a JPEG percentage (10-100, default 90). Outputs are page_1.jpg, page_2.jpg, ...`

	ImageResizeFileDescription = `Resize an image to a width, keeping its aspect ratio.

**Examples:**
• "Resize photo.png to 1200 pixels wide"
• "Make a 400 px thumbnail of logo.jpg"

**Best practices:** Output is always JPEG (processed_<name>.jpg); transparent areas are flattened onto white. Width defaults to 800, quality to 80.`

	ImageCompressFileDescription = `Re-encode an image as JPEG at a lower quality to reduce its size.

**Examples:**
• "Compress screenshot.png with quality 60"

**Best practices:** Dimensions are kept. Quality ranges 10-100 (default 80).`

	ImageMergeFilesDescription = `Stack two or more images vertically into a single JPEG.

**When to use:** Long screenshots, combined receipts, or side-by-side evidence rendered as one tall image.

**Best practices:** The canvas is as wide as the widest image; narrower images are centered. The default output is merged.jpg next to the first input.`

	// Utility Tools
	PDFValidateFileDescription = `Verify PDF file integrity and readability before processing.

**When to use:** Before compressing, merging, or splitting, especially for files of unknown origin.

**Examples:**
• "Check that upload.pdf is a readable PDF"

**Best practices:** Reports the page count and size of valid files and the reason for invalid ones.`

	PDFCompressionHistoryDescription = `List recent jobs and running totals.

**When to use:** Reviewing what was compressed, which jobs failed, and how many bytes were saved.

**Best practices:** Only available when the server runs with a history database (--history).`

	PDFServerInfoDescription = `Get server status, available tools, and the files in the working directory.

**When to use:** First call in a session, to learn the working directory and which files can be processed.

**Best practices:** Every tool path must be inside the working directory reported here.`
)
