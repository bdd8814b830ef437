// Moderation workflow engine for a community chat server.
//
// Members report suspect content through a guided private dialogue (`modflow/report`), moderators review flagged content through a parallel dialogue in a moderation channel (`modflow/review`), and an automated triage step (`modflow/visual`) pre-flags suspect image posts in a monitored public channel. Completed reports are correlated with their moderation notification through an append-only registry (`modflow/flagstore`), keyed by the notification's delivery id. The `modflow/engine` package routes inbound events between these pieces and carries out the moderation actions decided in review.
//
// The engine does not depend on any particular chat service: message delivery is behind the `engine.Transport` interface, and image classification behind `visual.Classifier`. See `discord` for the Discord adapter, and `cmd/modbot` for a daemon built on this package.
package modflow
