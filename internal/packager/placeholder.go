package packager

import (
	"bytes"
	"fmt"
	"strings"
)

// placeholderPDF assembles a minimal one-page PDF by hand: a white A4 page
// with the archive filename and a review notice printed in Helvetica. It
// stands in for documents whose page image could not be produced and is
// always a few hundred bytes, far below any size budget.
func placeholderPDF(filename string) ([]byte, error) {
	text := fmt.Sprintf("BT /F1 14 Tf 50 780 Td (Document placeholder) Tj "+
		"0 -24 Td /F1 10 Tf (%s) Tj "+
		"0 -18 Td (Original page image unavailable - manual review required.) Tj ET",
		escapePDFString(filename))

	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 595 842] /Resources << /Font << /F1 4 0 R >> >> /Contents 5 0 R >>",
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(text), text),
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects)+1)
	for i, obj := range objects {
		offsets[i+1] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xrefStart := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for i := 1; i <= len(objects); i++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[i])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n",
		len(objects)+1, xrefStart)
	return buf.Bytes(), nil
}

// escapePDFString escapes characters with special meaning inside PDF literal
// strings and drops non-ASCII bytes the Type1 font cannot render.
func escapePDFString(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '(', ')', '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			if r >= 32 && r < 127 {
				b.WriteRune(r)
			}
		}
	}
	return b.String()
}
