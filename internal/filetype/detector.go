package filetype

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

// Family groups formats by the page source adapter that serves them.
type Family string

const (
	FamilyPDF     Family = "pdf"
	FamilySlides  Family = "slides"
	FamilyWord    Family = "word"
	FamilyUnknown Family = "unknown"
)

// FileTypeInfo contains detected file type information
type FileTypeInfo struct {
	MIMEType    string
	Extension   string
	Family      Family
	Supported   bool
	Description string
}

// NeedsConversion reports whether the automation host must turn the file into PDF first.
func (i *FileTypeInfo) NeedsConversion() bool {
	return i.Supported && i.Family != FamilyPDF
}

const (
	mimePDF  = "application/pdf"
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimePPTX = "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	mimeDOC  = "application/msword"
	mimePPT  = "application/vnd.ms-powerpoint"
	mimeODT  = "application/vnd.oasis.opendocument.text"
	mimeODP  = "application/vnd.oasis.opendocument.presentation"
	mimeRTF  = "application/rtf"
)

// Detector handles file type detection using magic bytes
type Detector struct{}

// New creates a new file type detector
func New() *Detector {
	return &Detector{}
}

// Detect detects the actual file type using magic bytes, not filename.
// Container formats (ZIP, OLE) are disambiguated by extension.
func (d *Detector) Detect(filePath string) (*FileTypeInfo, error) {
	mtype, err := mimetype.DetectFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to detect file type: %w", err)
	}

	mimeType := mtype.String()
	extension := mtype.Extension()
	ext := strings.ToLower(filepath.Ext(filePath))

	log.Debug().Str("mime", mimeType).Str("ext", extension).Str("file", filePath).Msg("detected file type")

	switch {
	case mimeType == "application/zip" || strings.Contains(mimeType, "application/x-zip"):
		switch ext {
		case ".docx":
			mimeType, extension = mimeDOCX, ".docx"
		case ".pptx":
			mimeType, extension = mimePPTX, ".pptx"
		case ".odt":
			mimeType, extension = mimeODT, ".odt"
		case ".odp":
			mimeType, extension = mimeODP, ".odp"
		default:
			log.Warn().Str("ext", ext).Msg("ZIP file with unrecognized extension")
		}
	case mimeType == "application/x-ole-storage" || mimeType == "application/x-cfb":
		switch ext {
		case ".doc":
			mimeType, extension = mimeDOC, ".doc"
		case ".ppt":
			mimeType, extension = mimePPT, ".ppt"
		default:
			log.Warn().Str("ext", ext).Msg("OLE storage with unrecognized extension")
		}
	}

	if mimeType != mtype.String() {
		log.Debug().Str("original", mtype.String()).Str("override", mimeType).Msg("overriding container detection based on extension")
	}

	info := &FileTypeInfo{
		MIMEType:  mimeType,
		Extension: extension,
	}
	d.classify(info)
	return info, nil
}

func (d *Detector) classify(info *FileTypeInfo) {
	info.Supported = true
	switch info.MIMEType {
	case mimePDF:
		info.Family = FamilyPDF
		info.Description = "PDF document"
	case mimePPTX:
		info.Family = FamilySlides
		info.Description = "Microsoft PowerPoint presentation"
	case mimePPT:
		info.Family = FamilySlides
		info.Description = "Microsoft PowerPoint presentation (legacy)"
	case mimeODP:
		info.Family = FamilySlides
		info.Description = "OpenDocument presentation"
	case mimeDOCX:
		info.Family = FamilyWord
		info.Description = "Microsoft Word document"
	case mimeDOC:
		info.Family = FamilyWord
		info.Description = "Microsoft Word document (legacy)"
	case mimeODT:
		info.Family = FamilyWord
		info.Description = "OpenDocument text"
	case mimeRTF:
		info.Family = FamilyWord
		info.Description = "Rich Text Format"
	default:
		info.Family = FamilyUnknown
		info.Supported = false
		info.Description = fmt.Sprintf("Unsupported file type: %s", info.MIMEType)
	}
}
