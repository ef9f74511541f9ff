// Package provision ensures a platform-specific server executable is present
// under a storage root, downloading it from the project's release catalog when
// it is missing.
//
// A run walks a fixed sequence of states:
//
//	CheckCache -> Done(cached)
//	CheckCache -> ResolvePlatform -> AcquireLock -> FetchRelease ->
//	    SelectAsset -> Download -> [Verify] -> Install -> Done(fresh)
//
// Any state may end the run in Failed. Nothing is retried; a caller that wants
// another attempt calls Ensure again. A cache hit performs no network
// activity and takes no lock.
//
// Cache misses are serialized per storage root with an advisory lock file, and
// archives are unpacked into a staging directory so a failed run leaves the
// root as it found it.
//
// Usage:
//
//	p, err := provision.New(provision.Options{
//		StorageRoot: dir,
//		Logger:      logger,
//	})
//	if err != nil {
//		return err
//	}
//	res, err := p.Ensure(ctx)
//	if err != nil {
//		var f *provision.Failure
//		if errors.As(err, &f) {
//			// f.Kind, f.State
//		}
//		return err
//	}
//	fmt.Println(res.Path)
package provision
