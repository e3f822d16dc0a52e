package astieit

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/asticode/go-astikit"
)

// DescriptorTag is the tag of a descriptor, it defines the structure of the data following the descriptor length
type DescriptorTag uint8

// Descriptor tags
// Chapter: 6.1 | Link: https://www.etsi.org/deliver/etsi_en/300400_300499/300468/01.15.01_60/en_300468v011501p.pdf
const (
	DescriptorTagComponent            DescriptorTag = 0x50
	DescriptorTagContent              DescriptorTag = 0x54
	DescriptorTagExtendedEvent        DescriptorTag = 0x4e
	DescriptorTagParentalRating       DescriptorTag = 0x55
	DescriptorTagPrivateDataSpecifier DescriptorTag = 0x5f
	DescriptorTagShortEvent           DescriptorTag = 0x4d
)

// Descriptor is a typed descriptor created by a DescriptorFactory
type Descriptor interface {
	Tag() DescriptorTag
	// Report renders the descriptor into a report node
	Report() *ReportNode
}

// descriptorWriter is implemented by the descriptors this package knows how to serialize
type descriptorWriter interface {
	length() int
	write(b *astikit.BitsWriterBatch)
}

// DescriptorHeader represents the tag and length every descriptor starts with
type DescriptorHeader struct {
	Length uint8
	Tag    DescriptorTag
}

// DescriptorFactory creates a typed descriptor out of the bytes of one descriptor element. bs starts at the
// tag byte and n is the number of bytes the element occupies. The factory must report malformed bodies.
type DescriptorFactory interface {
	CreateDescriptor(tag DescriptorTag, bs []byte) (d Descriptor, n int, err error)
}

// DescriptorParser parses the body of a descriptor whose header has already been read. The iterator only
// holds the descriptor body.
type DescriptorParser func(i *astikit.BytesIterator, h DescriptorHeader) (Descriptor, error)

// DescriptorRegistry is a DescriptorFactory dispatching on a tag => parser table
// Register must not be called while sections are being decoded.
type DescriptorRegistry struct {
	parsers [256]DescriptorParser
}

// NewDescriptorRegistry creates a registry knowing the DVB descriptors carried by EITs. Tags in the user
// defined range are parsed as DescriptorUserDefined, other unlisted tags as DescriptorUnknown.
func NewDescriptorRegistry() *DescriptorRegistry {
	r := &DescriptorRegistry{}
	for i := range r.parsers {
		if i&0x80 > 0 && i != 0xff {
			r.parsers[i] = newDescriptorUserDefined
		} else {
			r.parsers[i] = newDescriptorUnknown
		}
	}
	r.Register(DescriptorTagComponent, newDescriptorComponent)
	r.Register(DescriptorTagContent, newDescriptorContent)
	r.Register(DescriptorTagExtendedEvent, newDescriptorExtendedEvent)
	r.Register(DescriptorTagParentalRating, newDescriptorParentalRating)
	r.Register(DescriptorTagPrivateDataSpecifier, newDescriptorPrivateDataSpecifier)
	r.Register(DescriptorTagShortEvent, newDescriptorShortEvent)
	return r
}

var defaultDescriptorRegistry = NewDescriptorRegistry()

// Register registers a parser for a tag, replacing the previous one
func (r *DescriptorRegistry) Register(t DescriptorTag, p DescriptorParser) {
	r.parsers[t] = p
}

// CreateDescriptor implements the DescriptorFactory interface
func (r *DescriptorRegistry) CreateDescriptor(t DescriptorTag, bs []byte) (d Descriptor, n int, err error) {
	// Header
	if len(bs) < 2 {
		err = fmt.Errorf("%w: descriptor header needs 2 bytes, %d left", ErrMalformedDescriptor, len(bs))
		return
	}
	h := DescriptorHeader{Tag: t, Length: bs[1]}
	n = 2 + int(h.Length)
	if len(bs) < n {
		err = fmt.Errorf("%w: descriptor 0x%x length is %d, only %d bytes left", ErrMalformedDescriptor, t, h.Length, len(bs)-2)
		return
	}

	// Body
	if d, err = r.parsers[t](astikit.NewBytesIterator(bs[2:n]), h); err != nil {
		err = fmt.Errorf("%w: parsing descriptor 0x%x failed: %s", ErrMalformedDescriptor, t, err)
		return
	}
	return
}

// parseDescriptorLoop parses a descriptor loop which must hold exactly declaredLength bytes. No descriptor
// is returned on error.
func parseDescriptorLoop(bs []byte, declaredLength int, f DescriptorFactory) (ds []Descriptor, err error) {
	defer func() {
		if err != nil {
			ds = nil
		}
	}()

	// Not enough bytes
	if len(bs) < declaredLength {
		err = fmt.Errorf("%w: descriptor loop length is %d, only %d bytes left", ErrSectionTruncated, declaredLength, len(bs))
		return
	}

	// Loop
	var offset int
	for offset < declaredLength {
		// Tag and length must fit in the loop
		if offset+2 > declaredLength {
			err = fmt.Errorf("%w: descriptor header at offset %d overruns loop length %d", ErrLoopLengthMismatch, offset, declaredLength)
			return
		}
		if l := 2 + int(bs[offset+1]); offset+l > declaredLength {
			err = fmt.Errorf("%w: descriptor 0x%x at offset %d with length %d overruns loop length %d", ErrLoopLengthMismatch, bs[offset], offset, l-2, declaredLength)
			return
		}

		// Create descriptor
		var d Descriptor
		var n int
		if d, n, err = f.CreateDescriptor(DescriptorTag(bs[offset]), bs[offset:declaredLength]); err != nil {
			err = fmt.Errorf("astieit: creating descriptor at offset %d failed: %w", offset, err)
			return
		} else if n <= 0 {
			err = fmt.Errorf("%w: factory consumed %d bytes for descriptor 0x%x", ErrMalformedDescriptor, n, bs[offset])
			return
		} else if d == nil {
			err = fmt.Errorf("%w: factory returned no descriptor for tag 0x%x", ErrMalformedDescriptor, bs[offset])
			return
		}

		ds = append(ds, d)
		offset += n
	}

	// Factory may have consumed more than the element
	if offset != declaredLength {
		err = fmt.Errorf("%w: descriptors consumed %d bytes, loop length is %d", ErrLoopLengthMismatch, offset, declaredLength)
		return
	}
	return
}

func calcDescriptorsLength(ds []Descriptor) (length int, err error) {
	for _, d := range ds {
		dw, ok := d.(descriptorWriter)
		if !ok {
			err = fmt.Errorf("astieit: descriptor 0x%x can't be written", d.Tag())
			return
		}
		length += 2 + dw.length()
	}
	return
}

func writeDescriptors(w *astikit.BitsWriter, ds []Descriptor) (int, error) {
	b := astikit.NewBitsWriterBatch(w)
	var written int
	for _, d := range ds {
		dw, ok := d.(descriptorWriter)
		if !ok {
			return written, fmt.Errorf("astieit: descriptor 0x%x can't be written", d.Tag())
		}
		l := dw.length()
		if l > 0xff {
			return written, fmt.Errorf("astieit: descriptor 0x%x length %d is too big", d.Tag(), l)
		}
		b.Write(uint8(d.Tag()))
		b.Write(uint8(l))
		dw.write(&b)
		written += 2 + l
	}
	return written, b.Err()
}

var errDescriptorInvalidLength = errors.New("astieit: invalid descriptor length")

// dvbText returns the text of a DVB string, skipping the character table selector if any
// Chapter: Annex A | Link: https://www.etsi.org/deliver/etsi_en/300400_300499/300468/01.15.01_60/en_300468v011501p.pdf
func dvbText(bs []byte) string {
	if len(bs) == 0 || bs[0] >= 0x20 {
		return string(bs)
	}
	switch bs[0] {
	case 0x10:
		if len(bs) < 3 {
			return ""
		}
		return string(bs[3:])
	case 0x1f:
		if len(bs) < 2 {
			return ""
		}
		return string(bs[2:])
	}
	return string(bs[1:])
}

// DescriptorUnknown represents a descriptor whose tag is not registered
type DescriptorUnknown struct {
	Content []byte
	Header  DescriptorHeader
}

func newDescriptorUnknown(i *astikit.BytesIterator, h DescriptorHeader) (Descriptor, error) {
	logger.Debugf("astieit: unlisted descriptor tag 0x%x", uint8(h.Tag))
	d := &DescriptorUnknown{Header: h}
	var err error
	d.Content, err = i.NextBytes(int(h.Length))
	return d, err
}

// Tag implements the Descriptor interface
func (d *DescriptorUnknown) Tag() DescriptorTag { return d.Header.Tag }

// Report implements the Descriptor interface
func (d *DescriptorUnknown) Report() *ReportNode {
	return NewReportNode("unknown_descriptor").
		AddHex("descriptor_tag", uint64(d.Header.Tag)).
		AddHex("descriptor_length", uint64(d.Header.Length)).
		AddBytes("content", d.Content)
}

func (d *DescriptorUnknown) length() int { return len(d.Content) }

func (d *DescriptorUnknown) write(b *astikit.BitsWriterBatch) { b.Write(d.Content) }

// DescriptorUserDefined represents a descriptor in the user defined tag range (0x80 to 0xfe)
type DescriptorUserDefined struct {
	Data   []byte
	Header DescriptorHeader
}

func newDescriptorUserDefined(i *astikit.BytesIterator, h DescriptorHeader) (Descriptor, error) {
	d := &DescriptorUserDefined{Header: h}
	var err error
	d.Data, err = i.NextBytes(int(h.Length))
	return d, err
}

// Tag implements the Descriptor interface
func (d *DescriptorUserDefined) Tag() DescriptorTag { return d.Header.Tag }

// Report implements the Descriptor interface
func (d *DescriptorUserDefined) Report() *ReportNode {
	return NewReportNode("user_defined_descriptor").
		AddHex("descriptor_tag", uint64(d.Header.Tag)).
		AddHex("descriptor_length", uint64(d.Header.Length)).
		AddBytes("data", d.Data)
}

func (d *DescriptorUserDefined) length() int { return len(d.Data) }

func (d *DescriptorUserDefined) write(b *astikit.BitsWriterBatch) { b.Write(d.Data) }

// DescriptorShortEvent represents a short event descriptor
// Chapter: 6.2.37 | Link: https://www.etsi.org/deliver/etsi_en/300400_300499/300468/01.15.01_60/en_300468v011501p.pdf
type DescriptorShortEvent struct {
	EventName []byte
	Header    DescriptorHeader
	Language  [3]byte
	Text      []byte
	Unparsed  []byte // Bytes declared by the descriptor length after the text
}

func newDescriptorShortEvent(i *astikit.BytesIterator, h DescriptorHeader) (Descriptor, error) {
	// Create descriptor
	d := &DescriptorShortEvent{Header: h}

	// Language
	var bs []byte
	var err error
	if bs, err = i.NextBytesNoCopy(3); err != nil {
		return nil, fmt.Errorf("astieit: fetching next bytes failed: %w", err)
	}
	copy(d.Language[:], bs)

	// Event name
	var b byte
	if b, err = i.NextByte(); err != nil {
		return nil, fmt.Errorf("astieit: fetching next byte failed: %w", err)
	}
	if d.EventName, err = i.NextBytes(int(b)); err != nil {
		return nil, fmt.Errorf("astieit: fetching next bytes failed: %w", err)
	}

	// Text
	if b, err = i.NextByte(); err != nil {
		return nil, fmt.Errorf("astieit: fetching next byte failed: %w", err)
	}
	if d.Text, err = i.NextBytes(int(b)); err != nil {
		return nil, fmt.Errorf("astieit: fetching next bytes failed: %w", err)
	}
	d.Unparsed = nextUnparsedBytes(i)
	return d, nil
}

// Tag implements the Descriptor interface
func (d *DescriptorShortEvent) Tag() DescriptorTag { return d.Header.Tag }

// Report implements the Descriptor interface
func (d *DescriptorShortEvent) Report() *ReportNode {
	return NewReportNode("short_event_descriptor").
		AddHex("descriptor_tag", uint64(d.Header.Tag)).
		AddHex("descriptor_length", uint64(d.Header.Length)).
		AddString("ISO_639_language_code", string(d.Language[:])).
		AddString("event_name", dvbText(d.EventName)).
		AddString("text", dvbText(d.Text))
}

func (d *DescriptorShortEvent) length() int {
	return 3 + 1 + len(d.EventName) + 1 + len(d.Text) + len(d.Unparsed)
}

func (d *DescriptorShortEvent) write(b *astikit.BitsWriterBatch) {
	b.Write(d.Language[:])
	b.Write(uint8(len(d.EventName)))
	b.Write(d.EventName)
	b.Write(uint8(len(d.Text)))
	b.Write(d.Text)
	b.Write(d.Unparsed)
}

// DescriptorExtendedEvent represents an extended event descriptor
// Chapter: 6.2.15 | Link: https://www.etsi.org/deliver/etsi_en/300400_300499/300468/01.15.01_60/en_300468v011501p.pdf
type DescriptorExtendedEvent struct {
	Header               DescriptorHeader
	ISO639LanguageCode   [3]byte
	Items                []*DescriptorExtendedEventItem
	LastDescriptorNumber uint8
	Number               uint8
	Text                 []byte
	Unparsed             []byte // Bytes declared by the descriptor length after the text
}

// DescriptorExtendedEventItem represents an extended event item descriptor
type DescriptorExtendedEventItem struct {
	Content     []byte
	Description []byte
}

func newDescriptorExtendedEvent(i *astikit.BytesIterator, h DescriptorHeader) (Descriptor, error) {
	// Create descriptor
	d := &DescriptorExtendedEvent{Header: h}

	// Numbers
	b, err := i.NextByte()
	if err != nil {
		return nil, fmt.Errorf("astieit: fetching next byte failed: %w", err)
	}
	d.Number = b >> 4
	d.LastDescriptorNumber = b & 0xf

	// ISO 639 language code
	var bs []byte
	if bs, err = i.NextBytesNoCopy(3); err != nil {
		return nil, fmt.Errorf("astieit: fetching next bytes failed: %w", err)
	}
	copy(d.ISO639LanguageCode[:], bs)

	// Items length
	if b, err = i.NextByte(); err != nil {
		return nil, fmt.Errorf("astieit: fetching next byte failed: %w", err)
	}

	// Items
	offsetEnd := i.Offset() + int(b)
	for i.Offset() < offsetEnd {
		item := &DescriptorExtendedEventItem{}
		if item.Description, err = nextLengthPrefixedBytes(i); err != nil {
			return nil, fmt.Errorf("astieit: parsing item description failed: %w", err)
		}
		if item.Content, err = nextLengthPrefixedBytes(i); err != nil {
			return nil, fmt.Errorf("astieit: parsing item content failed: %w", err)
		}
		d.Items = append(d.Items, item)
	}
	if i.Offset() != offsetEnd {
		return nil, fmt.Errorf("astieit: items consumed %d bytes more than their length", i.Offset()-offsetEnd)
	}

	// Text
	if d.Text, err = nextLengthPrefixedBytes(i); err != nil {
		return nil, fmt.Errorf("astieit: parsing text failed: %w", err)
	}
	d.Unparsed = nextUnparsedBytes(i)
	return d, nil
}

func nextLengthPrefixedBytes(i *astikit.BytesIterator) (bs []byte, err error) {
	var b byte
	if b, err = i.NextByte(); err != nil {
		err = fmt.Errorf("astieit: fetching next byte failed: %w", err)
		return
	}
	if bs, err = i.NextBytes(int(b)); err != nil {
		err = fmt.Errorf("astieit: fetching next bytes failed: %w", err)
		return
	}
	return
}

// nextUnparsedBytes returns the bytes a parser left in the descriptor body so that they can be written
// back, nil if there are none
func nextUnparsedBytes(i *astikit.BytesIterator) []byte {
	if !i.HasBytesLeft() {
		return nil
	}
	return i.Dump()
}

// Tag implements the Descriptor interface
func (d *DescriptorExtendedEvent) Tag() DescriptorTag { return d.Header.Tag }

// Report implements the Descriptor interface
func (d *DescriptorExtendedEvent) Report() *ReportNode {
	n := NewReportNode("extended_event_descriptor").
		AddHex("descriptor_tag", uint64(d.Header.Tag)).
		AddHex("descriptor_length", uint64(d.Header.Length)).
		AddHex("descriptor_number", uint64(d.Number)).
		AddHex("last_descriptor_number", uint64(d.LastDescriptorNumber)).
		AddString("ISO_639_language_code", string(d.ISO639LanguageCode[:]))
	for _, item := range d.Items {
		n.AddChild(NewReportNode("item").
			AddString("item_description", dvbText(item.Description)).
			AddString("item", dvbText(item.Content)))
	}
	return n.AddString("text", dvbText(d.Text))
}

func (d *DescriptorExtendedEvent) itemsLength() (l int) {
	for _, item := range d.Items {
		l += 1 + len(item.Description) + 1 + len(item.Content)
	}
	return
}

func (d *DescriptorExtendedEvent) length() int {
	return 1 + 3 + 1 + d.itemsLength() + 1 + len(d.Text) + len(d.Unparsed)
}

func (d *DescriptorExtendedEvent) write(b *astikit.BitsWriterBatch) {
	b.WriteN(d.Number, 4)
	b.WriteN(d.LastDescriptorNumber, 4)
	b.Write(d.ISO639LanguageCode[:])
	b.Write(uint8(d.itemsLength()))
	for _, item := range d.Items {
		b.Write(uint8(len(item.Description)))
		b.Write(item.Description)
		b.Write(uint8(len(item.Content)))
		b.Write(item.Content)
	}
	b.Write(uint8(len(d.Text)))
	b.Write(d.Text)
	b.Write(d.Unparsed)
}

// DescriptorComponent represents a component descriptor
// Chapter: 6.2.8 | Link: https://www.etsi.org/deliver/etsi_en/300400_300499/300468/01.15.01_60/en_300468v011501p.pdf
type DescriptorComponent struct {
	ComponentTag       uint8
	ComponentType      uint8
	Header             DescriptorHeader
	ISO639LanguageCode [3]byte
	StreamContent      uint8
	StreamContentExt   uint8
	Text               []byte
}

func newDescriptorComponent(i *astikit.BytesIterator, h DescriptorHeader) (Descriptor, error) {
	// Fixed part
	bs, err := i.NextBytesNoCopy(6)
	if err != nil {
		return nil, fmt.Errorf("astieit: fetching next bytes failed: %w", err)
	}
	d := &DescriptorComponent{
		ComponentTag:     bs[2],
		ComponentType:    bs[1],
		Header:           h,
		StreamContent:    bs[0] & 0xf,
		StreamContentExt: bs[0] >> 4,
	}
	copy(d.ISO639LanguageCode[:], bs[3:6])

	// Text
	d.Text = i.Dump()
	return d, nil
}

// Tag implements the Descriptor interface
func (d *DescriptorComponent) Tag() DescriptorTag { return d.Header.Tag }

// Report implements the Descriptor interface
func (d *DescriptorComponent) Report() *ReportNode {
	return NewReportNode("component_descriptor").
		AddHex("descriptor_tag", uint64(d.Header.Tag)).
		AddHex("descriptor_length", uint64(d.Header.Length)).
		AddHex("stream_content_ext", uint64(d.StreamContentExt)).
		AddHex("stream_content", uint64(d.StreamContent)).
		AddHex("component_type", uint64(d.ComponentType)).
		AddHex("component_tag", uint64(d.ComponentTag)).
		AddString("ISO_639_language_code", string(d.ISO639LanguageCode[:])).
		AddString("text", dvbText(d.Text))
}

func (d *DescriptorComponent) length() int { return 6 + len(d.Text) }

func (d *DescriptorComponent) write(b *astikit.BitsWriterBatch) {
	b.WriteN(d.StreamContentExt, 4)
	b.WriteN(d.StreamContent, 4)
	b.Write(d.ComponentType)
	b.Write(d.ComponentTag)
	b.Write(d.ISO639LanguageCode[:])
	b.Write(d.Text)
}

// DescriptorContent represents a content descriptor
// Check chapter 6.2.9 of https://www.etsi.org/deliver/etsi_en/300400_300499/300468/01.15.01_60/en_300468v011501p.pdf
// for content nibble levels associations
type DescriptorContent struct {
	Header DescriptorHeader
	Items  []*DescriptorContentItem
}

// DescriptorContentItem represents a content item descriptor
type DescriptorContentItem struct {
	ContentNibbleLevel1 uint8
	ContentNibbleLevel2 uint8
	UserByte            uint8
}

func newDescriptorContent(i *astikit.BytesIterator, h DescriptorHeader) (Descriptor, error) {
	if h.Length%2 != 0 {
		return nil, fmt.Errorf("astieit: content descriptor length %d is not a multiple of 2: %w", h.Length, errDescriptorInvalidLength)
	}
	d := &DescriptorContent{Header: h}
	for i.HasBytesLeft() {
		bs, err := i.NextBytesNoCopy(2)
		if err != nil {
			return nil, fmt.Errorf("astieit: fetching next bytes failed: %w", err)
		}
		d.Items = append(d.Items, &DescriptorContentItem{
			ContentNibbleLevel1: bs[0] >> 4,
			ContentNibbleLevel2: bs[0] & 0xf,
			UserByte:            bs[1],
		})
	}
	return d, nil
}

// Tag implements the Descriptor interface
func (d *DescriptorContent) Tag() DescriptorTag { return d.Header.Tag }

// Report implements the Descriptor interface
func (d *DescriptorContent) Report() *ReportNode {
	n := NewReportNode("content_descriptor").
		AddHex("descriptor_tag", uint64(d.Header.Tag)).
		AddHex("descriptor_length", uint64(d.Header.Length))
	for _, item := range d.Items {
		n.AddChild(NewReportNode("content").
			AddHex("content_nibble_level_1", uint64(item.ContentNibbleLevel1)).
			AddHex("content_nibble_level_2", uint64(item.ContentNibbleLevel2)).
			AddHex("user_byte", uint64(item.UserByte)))
	}
	return n
}

func (d *DescriptorContent) length() int { return 2 * len(d.Items) }

func (d *DescriptorContent) write(b *astikit.BitsWriterBatch) {
	for _, item := range d.Items {
		b.WriteN(item.ContentNibbleLevel1, 4)
		b.WriteN(item.ContentNibbleLevel2, 4)
		b.Write(item.UserByte)
	}
}

// DescriptorParentalRating represents a parental rating descriptor
// Chapter: 6.2.28 | Link: https://www.etsi.org/deliver/etsi_en/300400_300499/300468/01.15.01_60/en_300468v011501p.pdf
type DescriptorParentalRating struct {
	Header DescriptorHeader
	Items  []*DescriptorParentalRatingItem
}

// DescriptorParentalRatingItem represents a parental rating item descriptor
type DescriptorParentalRatingItem struct {
	CountryCode [3]byte
	Rating      uint8
}

// MinimumAge returns the minimum age for the parental rating
func (d DescriptorParentalRatingItem) MinimumAge() int {
	// Undefined or user defined ratings
	if d.Rating == 0 || d.Rating > 0xf {
		return 0
	}
	return int(d.Rating) + 3
}

func newDescriptorParentalRating(i *astikit.BytesIterator, h DescriptorHeader) (Descriptor, error) {
	if h.Length%4 != 0 {
		return nil, fmt.Errorf("astieit: parental rating descriptor length %d is not a multiple of 4: %w", h.Length, errDescriptorInvalidLength)
	}
	d := &DescriptorParentalRating{Header: h}
	for i.HasBytesLeft() {
		bs, err := i.NextBytesNoCopy(4)
		if err != nil {
			return nil, fmt.Errorf("astieit: fetching next bytes failed: %w", err)
		}
		item := &DescriptorParentalRatingItem{Rating: bs[3]}
		copy(item.CountryCode[:], bs)
		d.Items = append(d.Items, item)
	}
	return d, nil
}

// Tag implements the Descriptor interface
func (d *DescriptorParentalRating) Tag() DescriptorTag { return d.Header.Tag }

// Report implements the Descriptor interface
func (d *DescriptorParentalRating) Report() *ReportNode {
	n := NewReportNode("parental_rating_descriptor").
		AddHex("descriptor_tag", uint64(d.Header.Tag)).
		AddHex("descriptor_length", uint64(d.Header.Length))
	for _, item := range d.Items {
		n.AddChild(NewReportNode("rating").
			AddString("country_code", string(item.CountryCode[:])).
			AddHex("rating", uint64(item.Rating)))
	}
	return n
}

func (d *DescriptorParentalRating) length() int { return 4 * len(d.Items) }

func (d *DescriptorParentalRating) write(b *astikit.BitsWriterBatch) {
	for _, item := range d.Items {
		b.Write(item.CountryCode[:])
		b.Write(item.Rating)
	}
}

// DescriptorPrivateDataSpecifier represents a private data specifier descriptor
// Chapter: 6.2.31 | Link: https://www.etsi.org/deliver/etsi_en/300400_300499/300468/01.15.01_60/en_300468v011501p.pdf
type DescriptorPrivateDataSpecifier struct {
	Header    DescriptorHeader
	Specifier uint32
	Unparsed  []byte // Bytes declared by the descriptor length after the specifier
}

func newDescriptorPrivateDataSpecifier(i *astikit.BytesIterator, h DescriptorHeader) (Descriptor, error) {
	bs, err := i.NextBytesNoCopy(4)
	if err != nil {
		return nil, fmt.Errorf("astieit: fetching next bytes failed: %w", err)
	}
	return &DescriptorPrivateDataSpecifier{
		Header:    h,
		Specifier: binary.BigEndian.Uint32(bs),
		Unparsed:  nextUnparsedBytes(i),
	}, nil
}

// Tag implements the Descriptor interface
func (d *DescriptorPrivateDataSpecifier) Tag() DescriptorTag { return d.Header.Tag }

// Report implements the Descriptor interface
func (d *DescriptorPrivateDataSpecifier) Report() *ReportNode {
	return NewReportNode("private_data_specifier_descriptor").
		AddHex("descriptor_tag", uint64(d.Header.Tag)).
		AddHex("descriptor_length", uint64(d.Header.Length)).
		AddHex("private_data_specifier", uint64(d.Specifier))
}

func (d *DescriptorPrivateDataSpecifier) length() int { return 4 + len(d.Unparsed) }

func (d *DescriptorPrivateDataSpecifier) write(b *astikit.BitsWriterBatch) {
	b.Write(d.Specifier)
	b.Write(d.Unparsed)
}
