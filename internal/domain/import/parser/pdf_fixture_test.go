package parser

import (
	"bytes"
	"crypto/md5"
	"crypto/rc4"
	"fmt"
	"strings"
)

// passwordPadding is the standard security handler padding string.
var passwordPadding = []byte{
	0x28, 0xBF, 0x4E, 0x5E, 0x4E, 0x75, 0x8A, 0x41, 0x64, 0x00, 0x4E, 0x56, 0xFF, 0xFA, 0x01, 0x08,
	0x2E, 0x2E, 0x00, 0xB6, 0xD0, 0x68, 0x3E, 0x80, 0x2F, 0x0C, 0xA9, 0xFE, 0x64, 0x53, 0x69, 0x7A,
}

type cipherKind int

const (
	cipherRC4 cipherKind = iota
	// cipherAESV2 writes a V4 dictionary with the AESV2 crypt filter. Streams
	// are left in the clear, so only the dictionary matters.
	cipherAESV2
	// cipherAESV3 writes a V5 (256-bit) dictionary.
	cipherAESV3
)

type pdfProtection struct {
	cipher        cipherKind
	userPassword  string
	ownerPassword string
}

// writePDF renders each page's runs as Helvetica 8pt text with every glyph
// 500 units wide, so a run lays out exactly like textAt.
func writePDF(pages [][]textRun, protect *pdfProtection) []byte {
	w := &pdfWriter{}
	fileID := md5.Sum([]byte("statement fixture"))

	pageObjs := make([]int, len(pages))
	for i := range pages {
		pageObjs[i] = 4 + 2*i
	}
	encryptObj := 4 + 2*len(pages)

	var key []byte
	var encryptDict string
	if protect != nil {
		key, encryptDict = securityHandler(protect, fileID[:])
	}

	kids := make([]string, len(pageObjs))
	for i, n := range pageObjs {
		kids[i] = fmt.Sprintf("%d 0 R", n)
	}

	w.object(1, "<< /Type /Catalog /Pages 2 0 R >>")
	w.object(2, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)))

	widths := strings.TrimSpace(strings.Repeat("500 ", 126-32+1))
	w.object(3, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding "+
		"/FirstChar 32 /LastChar 126 /Widths ["+widths+"] >>")

	for i, runs := range pages {
		pageObj, contentObj := pageObjs[i], pageObjs[i]+1
		w.object(pageObj, fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 595 842] "+
			"/Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", contentObj))

		content := contentStream(runs)
		if key != nil && protect.cipher == cipherRC4 {
			content = rc4Apply(objectKey(key, contentObj), content)
		}
		w.stream(contentObj, content)
	}

	trailer := fmt.Sprintf("/Size %d /Root 1 0 R /ID [<%x> <%x>]", len(w.offsets)+1, fileID, fileID)
	if protect != nil {
		w.object(encryptObj, encryptDict)
		trailer = fmt.Sprintf("/Size %d /Root 1 0 R /Encrypt %d 0 R /ID [<%x> <%x>]",
			len(w.offsets)+1, encryptObj, fileID, fileID)
	}
	return w.finish(trailer)
}

func contentStream(runs []textRun) []byte {
	var b bytes.Buffer
	for _, r := range runs {
		fmt.Fprintf(&b, "BT /F1 %g Tf 1 0 0 1 %g %g Tm (%s) Tj ET\n", testFontSize, r.x, r.y, escapePDFString(r.text))
	}
	return b.Bytes()
}

func escapePDFString(s string) string {
	return strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`).Replace(s)
}

// securityHandler derives the standard handler entries (revision 3, 128-bit)
// and returns the file key with the encryption dictionary.
func securityHandler(p *pdfProtection, fileID []byte) ([]byte, string) {
	permissions := int32(-44)
	owner := p.ownerPassword
	if owner == "" {
		owner = p.userPassword
	}

	ownerKey := md5.Sum(padPassword(owner))
	for i := 0; i < 50; i++ {
		ownerKey = md5.Sum(ownerKey[:])
	}
	o := rc4Rounds(ownerKey[:], padPassword(p.userPassword))

	h := md5.New()
	h.Write(padPassword(p.userPassword))
	h.Write(o)
	perm := uint32(permissions)
	h.Write([]byte{byte(perm), byte(perm >> 8), byte(perm >> 16), byte(perm >> 24)})
	h.Write(fileID)
	key := h.Sum(nil)
	for i := 0; i < 50; i++ {
		sum := md5.Sum(key[:16])
		key = sum[:]
	}

	check := md5.Sum(append(append([]byte{}, passwordPadding...), fileID...))
	u := append(rc4Rounds(key, check[:]), make([]byte, 16)...)

	switch p.cipher {
	case cipherAESV2:
		return key, fmt.Sprintf("<< /Filter /Standard /V 4 /R 4 /Length 128 "+
			"/CF << /StdCF << /AuthEvent /DocOpen /CFM /AESV2 /Length 16 >> >> /StmF /StdCF /StrF /StdCF "+
			"/O <%x> /U <%x> /P %d >>", o, u, permissions)
	case cipherAESV3:
		return key, fmt.Sprintf("<< /Filter /Standard /V 5 /R 6 /Length 256 "+
			"/CF << /StdCF << /AuthEvent /DocOpen /CFM /AESV3 /Length 32 >> >> /StmF /StdCF /StrF /StdCF "+
			"/O <%x> /U <%x> /P %d >>", o, u, permissions)
	default:
		return key, fmt.Sprintf("<< /Filter /Standard /V 2 /R 3 /Length 128 /O <%x> /U <%x> /P %d >>",
			o, u, permissions)
	}
}

func padPassword(pw string) []byte {
	out := append([]byte(pw), passwordPadding...)
	return out[:32]
}

// rc4Rounds applies the twenty key-xor RC4 passes of revision 3.
func rc4Rounds(key, data []byte) []byte {
	out := append([]byte{}, data...)
	for i := 0; i <= 19; i++ {
		k := make([]byte, len(key))
		for j := range key {
			k[j] = key[j] ^ byte(i)
		}
		out = rc4Apply(k, out)
	}
	return out
}

func rc4Apply(key, data []byte) []byte {
	c, err := rc4.NewCipher(key)
	if err != nil {
		panic(err)
	}
	out := make([]byte, len(data))
	c.XORKeyStream(out, data)
	return out
}

func objectKey(fileKey []byte, obj int) []byte {
	sum := md5.Sum(append(append([]byte{}, fileKey...), byte(obj), byte(obj>>8), byte(obj>>16), 0, 0))
	return sum[:]
}

type pdfWriter struct {
	buf     bytes.Buffer
	offsets map[int]int
}

func (w *pdfWriter) start(num int) {
	if w.offsets == nil {
		w.offsets = make(map[int]int)
		w.buf.WriteString("%PDF-1.4\n")
	}
	w.offsets[num] = w.buf.Len()
	fmt.Fprintf(&w.buf, "%d 0 obj\n", num)
}

func (w *pdfWriter) object(num int, body string) {
	w.start(num)
	w.buf.WriteString(body)
	w.buf.WriteString("\nendobj\n")
}

func (w *pdfWriter) stream(num int, data []byte) {
	w.start(num)
	fmt.Fprintf(&w.buf, "<< /Length %d >>\nstream\n", len(data))
	w.buf.Write(data)
	w.buf.WriteString("\nendstream\nendobj\n")
}

func (w *pdfWriter) finish(trailer string) []byte {
	xref := w.buf.Len()
	size := len(w.offsets) + 1
	fmt.Fprintf(&w.buf, "xref\n0 %d\n0000000000 65535 f \n", size)
	for i := 1; i < size; i++ {
		fmt.Fprintf(&w.buf, "%010d 00000 n \n", w.offsets[i])
	}
	fmt.Fprintf(&w.buf, "trailer\n<< %s >>\nstartxref\n%d\n%%%%EOF\n", trailer, xref)
	return w.buf.Bytes()
}
