// Copyright (c) Lian Authors.
// Licensed under the MIT License.

/*
包 orm 在连接池与语句构建器之上提供按表的行映射操作。

# 概述

Model 绑定一张表与一个逻辑库，库名取自逻辑库配置的 database，
也可由 WithSchema 覆盖。表名可由类型名推导：TableName 把驼峰名
转换为下划线形式，NewFor[T] 直接以类型 T 创建模型。

# 操作

  - Select / SelectRaw / Find：查询行，未指定投影时使用 WithFields 的默认列。
  - Get：按主键（或指定列）取一行，不存在时返回 ErrObjectNotFound，
    错误信息形如 "<schema>.<table> #<pk>"。
  - Insert / InsertRow：自动提交后按自增主键读回新行。
  - InsertMany：单条多值 INSERT 批量插入，返回影响行数。
  - Update / Delete：返回影响行数。
  - Count：读取 COUNT(1)。

# 行缓存

WithCache 为 Get 启用 Redis 行缓存。任何经模型执行的写操作都会
使该表的缓存失效；缓存不可用时退化为直接查询。
*/
package orm
