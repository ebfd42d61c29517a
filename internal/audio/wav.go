// ============================================================================
// SpiritFlow - Guided Meditation Companion
// ============================================================================
//
// Package:     audio
// Description: RIFF/WAVE export and import of 16-bit PCM buffers
// Author:      Mike Stoffels with Claude
// Created:     2025-12-09
// License:     MIT
// ============================================================================

package audio

import (
	"encoding/binary"
	"fmt"
	"io"
)

// EncodeWAV writes buf as a 16-bit PCM WAV file
func EncodeWAV(w io.Writer, buf *Buffer) error {
	pcm := EncodePCM16(buf)
	channels := uint16(buf.Channels())
	rate := uint32(buf.SampleRate())
	blockAlign := channels * 2

	header := make([]byte, 44)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+len(pcm)))
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(header[22:24], channels)
	binary.LittleEndian.PutUint32(header[24:28], rate)
	binary.LittleEndian.PutUint32(header[28:32], rate*uint32(blockAlign))
	binary.LittleEndian.PutUint16(header[32:34], blockAlign)
	binary.LittleEndian.PutUint16(header[34:36], 16)
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(len(pcm)))

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write WAV header: %w", err)
	}
	if _, err := w.Write(pcm); err != nil {
		return fmt.Errorf("failed to write WAV data: %w", err)
	}
	return nil
}

// DecodeWAV parses a 16-bit PCM WAV file into a buffer
func DecodeWAV(data []byte) (*Buffer, error) {
	if len(data) < 44 {
		return nil, fmt.Errorf("%w: file too small to be a valid WAV", ErrDecode)
	}
	if string(data[0:4]) != "RIFF" {
		return nil, fmt.Errorf("%w: not a valid RIFF file", ErrDecode)
	}
	if string(data[8:12]) != "WAVE" {
		return nil, fmt.Errorf("%w: not a valid WAVE file", ErrDecode)
	}

	pos := 12
	var (
		sampleRate    uint32
		channels      uint16
		bitsPerSample uint16
		dataStart     int
		dataSize      int
	)

	for pos+8 <= len(data) {
		chunkID := string(data[pos : pos+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))

		switch chunkID {
		case "fmt ":
			if chunkSize >= 16 && pos+24 <= len(data) {
				channels = binary.LittleEndian.Uint16(data[pos+10 : pos+12])
				sampleRate = binary.LittleEndian.Uint32(data[pos+12 : pos+16])
				bitsPerSample = binary.LittleEndian.Uint16(data[pos+22 : pos+24])
			}
		case "data":
			dataStart = pos + 8
			dataSize = chunkSize
		}

		pos += 8 + chunkSize
		if pos%2 != 0 {
			pos++ // word alignment
		}
	}

	if sampleRate == 0 || dataStart == 0 {
		return nil, fmt.Errorf("%w: missing required WAV chunks", ErrDecode)
	}
	if bitsPerSample != 16 {
		return nil, fmt.Errorf("%w: unsupported %d-bit samples", ErrDecode, bitsPerSample)
	}
	if dataStart+dataSize > len(data) {
		dataSize = len(data) - dataStart
	}

	return DecodePCM16(data[dataStart:dataStart+dataSize], int(sampleRate), int(channels))
}
