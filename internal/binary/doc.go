// Package binary fetches, unpacks, and installs a server executable from a
// release archive.
//
// # Pipeline pieces
//
//   - Fetcher: HTTP GET that follows redirects itself, one hop at a time,
//     with an explicit budget (DefaultMaxRedirects). A failed transfer never
//     leaves a partial file at the destination.
//   - Extractor: unpacks zip, tar, tar.gz, tar.bz2 and tar.xz archives. The
//     format is sniffed from the file header, not the name. Entries that
//     would escape the destination directory are rejected.
//   - Installer: unpacks into a staging directory beside the install
//     location, checks for bin/<binary>, marks it executable, then moves the
//     staged tree into place. A failed install leaves the storage root as it
//     was.
//   - Verifier: optional SHA256 checksum and OpenPGP detached-signature
//     checks. Nothing in the pipeline calls it unless asked to.
//
// # Usage
//
//	f := binary.NewFetcher(nil, "provision/1.0")
//	if err := f.Fetch(ctx, asset.DownloadURL, archivePath); err != nil {
//	    return err
//	}
//
//	inst := binary.NewInstaller(binary.NewExtractor())
//	path, err := inst.Install(archivePath, storageRoot, vocab)
package binary
