// Copyright (c) Lian Authors.
// Licensed under the MIT License.

/*
包 database 提供按逻辑库名管理的有界连接池与语句执行门面。

# 概述

Manager 持有进程内唯一的连接池状态，生命周期为
NewManager → Init → Instance → Close。Init 只允许调用一次，
Instance 在首次调用时以双重检查加锁构建 ConnectionPool，
并通过 errgroup 并发预热每个逻辑库，将配置错误提前暴露。

# 核心类型

  - Driver / Conn：底层驱动能力，默认实现 SQLDriver 基于
    database/sql 与 go-sql-driver/mysql，每条 Conn 是独占的 *sql.Conn。
  - Pool：单个逻辑库的连接池。空闲队列、占用表与建连预留数由
    同一把锁保护，满足 idle + using + opening <= max；池满时
    Acquire 阻塞直到有连接归还或 ctx 结束。
  - PooledConnection：借出的连接，Release 可重复调用。
  - Result / Row：Execute 与 Query 返回的归一化结果。

# 建连与重试

建连失败按固定间隔无限重试，重试日志经 rate.Sometimes 限流；
配置错误立即返回。调用方通过 ctx 设置等待上限。

# 可观测性

每次执行生成 uuid 关联 ID 写入日志与 ctx，记录 OpenTelemetry span
与 Prometheus 指标，超过阈值的语句以 Warn 级别记录。
*/
package database
