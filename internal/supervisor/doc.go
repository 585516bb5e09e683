// skysync - Multi-account Bluesky syndication service
// Copyright 2026 The skysync Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000

/*
Package supervisor runs the long-lived components under a suture v4 tree.

	RootSupervisor ("skysync")
	├── storage-layer
	│   └── badger-gc              (Badger backend only)
	├── worker-layer
	│   ├── job-worker             (async delivery)
	│   ├── sync-executor          (sync delivery, drains pending retries)
	│   └── feed-watcher           (when feed_watch.enabled)
	└── api-layer
	    └── operator-api           (HTTP server)

Crashed services restart with suture's backoff; a failing worker does not
take the API down with it. Supervisor events are logged through sutureslog
on an slog.Logger that forwards to zerolog.

The services subpackage holds the adapters: HTTPServerService for
*http.Server, LifecycleService for Start/Stop components and DrainService
for components that only need stopping.

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddWorkerService(services.NewLifecycleService("job-worker", worker))
	tree.AddAPIService(services.NewHTTPServerService(server, "operator-api", 10*time.Second))
	err = tree.Serve(ctx)
*/
package supervisor
