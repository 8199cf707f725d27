package pe

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/binary"
	"fmt"
	"time"
)

// SignatureInfo is a diagnostic summary of the Authenticode signature (if
// any) attached to the file's IMAGE_DIRECTORY_ENTRY_SECURITY directory.
type SignatureInfo struct {
	IsSigned        bool
	Certificates    []CertificateInfo
	DigestAlgorithm string
}

// CertificateInfo summarizes one certificate in the signature's chain.
type CertificateInfo struct {
	Subject      string
	Issuer       string
	SerialNumber string
	NotBefore    time.Time
	NotAfter     time.Time
	IsValid      bool
}

//nolint:revive // ALL_CAPS matches Windows SDK naming
const (
	winCertRevision2_0        = 0x0200
	winCertTypePKCSSignedData = 0x0002
	directorySecurity         = 4
)

// DetectSignature reports whether the file carries an Authenticode
// signature and, if so, decodes its PKCS#7 certificate chain for display.
// Unlike a loaded RVA, the security directory's VirtualAddress is a plain
// file offset per the PE spec, so it bypasses ResolveRVA entirely.
func DetectSignature(h *ExeHeader, r Readable) (*SignatureInfo, error) {
	info := &SignatureInfo{}

	var secOffset, secSize uint32
	for _, e := range h.RvaTable {
		if e.Index == directorySecurity {
			secOffset, secSize = e.Virtual.Start, e.Virtual.Size
		}
	}
	if secOffset == 0 || secSize == 0 {
		return info, nil
	}
	info.IsSigned = true

	certHeader, err := readAtFull(r, int64(secOffset), 8)
	if err != nil {
		return info, fmt.Errorf("read WIN_CERTIFICATE header: %w", err)
	}
	length := binary.LittleEndian.Uint32(certHeader[0:4])
	revision := binary.LittleEndian.Uint16(certHeader[4:6])
	certType := binary.LittleEndian.Uint16(certHeader[6:8])
	if revision != winCertRevision2_0 || certType != winCertTypePKCSSignedData {
		return info, fmt.Errorf("unsupported certificate type (revision=%#x type=%#x): %w", revision, certType, ErrUnsupported)
	}
	if length < 8 {
		return info, fmt.Errorf("certificate length %d too small: %w", length, ErrInvalidFormat)
	}

	certData, err := readAtFull(r, int64(secOffset)+8, int(length-8))
	if err != nil {
		return info, fmt.Errorf("read certificate data: %w", err)
	}

	if err := parsePKCS7(certData, info); err != nil {
		return info, fmt.Errorf("parse PKCS#7 signature: %w", err)
	}
	return info, nil
}

type contentInfo struct {
	ContentType asn1.ObjectIdentifier
	Content     asn1.RawValue `asn1:"explicit,optional,tag:0"`
}

type signedData struct {
	Version          int
	DigestAlgorithms []pkix.AlgorithmIdentifier `asn1:"set"`
	ContentInfo      contentInfo
	Certificates     asn1.RawValue `asn1:"optional,tag:0"`
	SignerInfos      []interface{} `asn1:"set"`
}

func parsePKCS7(data []byte, info *SignatureInfo) error {
	var content contentInfo
	if _, err := asn1.Unmarshal(data, &content); err != nil {
		return err
	}

	var signed signedData
	if _, err := asn1.Unmarshal(content.Content.Bytes, &signed); err != nil {
		return err
	}

	if len(signed.DigestAlgorithms) > 0 {
		info.DigestAlgorithm = signed.DigestAlgorithms[0].Algorithm.String()
	}

	if signed.Certificates.Bytes != nil {
		certs, err := x509.ParseCertificates(signed.Certificates.Bytes)
		if err == nil {
			now := time.Now()
			for _, cert := range certs {
				info.Certificates = append(info.Certificates, CertificateInfo{
					Subject:      cert.Subject.String(),
					Issuer:       cert.Issuer.String(),
					SerialNumber: fmt.Sprintf("%X", cert.SerialNumber),
					NotBefore:    cert.NotBefore,
					NotAfter:     cert.NotAfter,
					IsValid:      now.After(cert.NotBefore) && now.Before(cert.NotAfter),
				})
			}
		}
	}

	return nil
}
